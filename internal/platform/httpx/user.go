package httpx

import (
	"net/http"
	"strconv"
	"strings"
)

// UserHeader carries the acting user id set by the upstream gateway.
const UserHeader = "X-User-ID"

// UserID reads the acting user from UserHeader. It writes a 401 problem and
// returns false when the header is missing or not a positive integer.
func UserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get(UserHeader))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		Problem(w, http.StatusUnauthorized, "Unauthorized", "missing "+UserHeader)
		return 0, false
	}
	return id, true
}
