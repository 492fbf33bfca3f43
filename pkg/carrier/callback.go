package carrier

import "strings"

// callbackPath is the path shape the rating provider serves quotes on.
const callbackPath = "/api/Integration/shopify/"

// CallbackURL derives the URL the storefront calls for rate quotes.
// Inputs are concatenated as given so the result matches services
// registered by earlier installs byte for byte.
func CallbackURL(endpoint, apiKey string) string {
	return endpoint + callbackPath + apiKey
}

// RedactCallbackURL hides the API key segment of a callback URL for logging.
func RedactCallbackURL(callbackURL string) string {
	i := strings.LastIndex(callbackURL, callbackPath)
	if i < 0 {
		return callbackURL
	}
	return callbackURL[:i+len(callbackPath)] + "***"
}
