package authcontext

import "context"

// Anonymous is the subject of requests without a valid session.
const Anonymous = "system:anonymous"

type contextKeySessionID struct{}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKeySessionID{}, sessionID)
}

func SessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(contextKeySessionID{}).(string)
	if !ok || sessionID == "" {
		return "", false
	}

	return sessionID, true
}

type contextKeySubject struct{}

func GetSubject(ctx context.Context) string {
	userID, ok := ctx.Value(contextKeySubject{}).(string)
	if !ok || userID == "" {
		return Anonymous
	}

	return userID
}

func WithSubject(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeySubject{}, userID)
}

func IsAuthenticated(ctx context.Context) bool {
	return GetSubject(ctx) != Anonymous
}

// ViewerID returns the authenticated user id, or "" for anonymous requests.
func ViewerID(ctx context.Context) string {
	sub := GetSubject(ctx)
	if sub == Anonymous {
		return ""
	}

	return sub
}
