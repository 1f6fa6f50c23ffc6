package docstore

import (
	"strings"
)

const usersRoot = "users"

// UserCollection returns the path of a collection owned by userID,
// e.g. users/{userID}/jobApplications.
func UserCollection(userID, name string) string {
	return usersRoot + "/" + userID + "/" + name
}

// DocPath joins a collection path and a document id.
func DocPath(collection, id string) string {
	return collection + "/" + id
}

func segments(path string) ([]string, bool) {
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" {
			return nil, false
		}
	}
	return parts, true
}

func checkCollectionPath(path string) error {
	parts, ok := segments(path)
	if !ok || len(parts)%2 != 1 {
		return newError(CodeInvalidArgument, path, "malformed collection path")
	}
	return nil
}

// splitDocPath returns the parent collection and the document id.
func splitDocPath(path string) (string, string, error) {
	parts, ok := segments(path)
	if !ok || len(parts) < 2 || len(parts)%2 != 0 {
		return "", "", newError(CodeInvalidArgument, path, "malformed document path")
	}
	i := strings.LastIndex(path, "/")
	return path[:i], path[i+1:], nil
}

// authorize enforces owner scoping: every path must live under
// users/{principal}.
func authorize(principal, path string) error {
	if principal == "" {
		return newError(CodePermissionDenied, path, "unauthenticated")
	}
	if !strings.HasPrefix(path, usersRoot+"/"+principal+"/") {
		return newError(CodePermissionDenied, path, "path is outside the caller's namespace")
	}
	return nil
}
