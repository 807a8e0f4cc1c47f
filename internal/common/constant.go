package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// actor access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// UndecryptablePlaceholder replaces the text of a message whose stored
// ciphertext can no longer be opened.
const UndecryptablePlaceholder = "content unavailable"
