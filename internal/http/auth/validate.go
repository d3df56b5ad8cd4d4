package auth

// validateCredentialsReq rejects requests with missing fields before they
// reach the service; the full format rules live in the service itself.
func validateCredentialsReq(req credentialsRequest) string {
	if req.Username == "" {
		return ErrUsernameRequired
	}

	if req.Password == "" {
		return ErrPasswordRequired
	}

	return ""
}
