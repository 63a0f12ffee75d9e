package runtime

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aretw0/issueflow/pkg/domain"
)

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// quotaMarkers are matched against the lowercased message. A bare status
// number is not a marker: URLs and paths in transport errors can contain it.
var quotaMarkers = []string{
	"resource_exhausted",
	"quota",
	"rate limit",
	"too many requests",
}

// Classify maps a step failure to its kind. Failures wrapping
// domain.ErrRateLimited, carrying an HTTP 429 status, or whose message
// mentions a quota marker are rate limits; everything else is generic.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.KindGeneric
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return domain.KindRateLimited
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() == http.StatusTooManyRequests {
		return domain.KindRateLimited
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return domain.KindRateLimited
		}
	}
	return domain.KindGeneric
}
