// Package fingerprint derives a stable client fingerprint from request
// headers and compares fingerprints to detect session hijacking. The
// fingerprint is a best-effort signal, never a means of authentication on
// its own: a replayed session cookie used from a different client
// configuration will likely mismatch, and any mismatch fails closed.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/qdata-project/qdata/internal/auth/models"
)

// Input carries the header values a fingerprint is derived from. Missing
// headers are left empty and stay empty on later requests from the same
// client, so their absence is itself part of the fingerprint.
type Input struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
}

// Result reports the outcome of a comparison. Reason names the first field
// that drifted.
type Result struct {
	IsValid bool
	Reason  string
}

// Generate derives a fingerprint from the given header values.
func Generate(in Input) *models.Fingerprint {
	sum := sha256.Sum256([]byte(in.UserAgent + "\x00" + in.AcceptLanguage + "\x00" + in.AcceptEncoding))
	return &models.Fingerprint{
		UserAgent:      in.UserAgent,
		AcceptLanguage: in.AcceptLanguage,
		AcceptEncoding: in.AcceptEncoding,
		Hash:           hex.EncodeToString(sum[:]),
	}
}

// FromRequest derives a fingerprint from an inbound HTTP request.
func FromRequest(r *http.Request) *models.Fingerprint {
	return Generate(Input{
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
	})
}

// Verify compares a stored fingerprint against the current request's.
// Comparison is exact equality per captured field, not similarity scoring:
// any drift is reported invalid with a reason naming the field.
func Verify(stored, current *models.Fingerprint) Result {
	if stored == nil || current == nil {
		return Result{IsValid: true}
	}
	if stored.UserAgent != current.UserAgent {
		return Result{IsValid: false, Reason: "user agent mismatch"}
	}
	if stored.AcceptLanguage != current.AcceptLanguage {
		return Result{IsValid: false, Reason: "accept-language mismatch"}
	}
	if stored.AcceptEncoding != current.AcceptEncoding {
		return Result{IsValid: false, Reason: "accept-encoding mismatch"}
	}
	return Result{IsValid: true}
}
