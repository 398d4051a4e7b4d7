// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for authentication metrics.
const (
	ResultMatch    = "match"
	ResultMismatch = "mismatch"
	ResultError    = "error"
	ResultValid    = "valid"
	ResultInvalid  = "invalid"
	ResultSuccess  = "success"
	ResultFailure  = "failure"
)

// CredentialChecks counts credential verifications by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var CredentialChecks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sessionauth_credential_checks_total",
		Help: "Total number of credential verifications by result",
	},
	[]string{"result"},
)

// TokenValidations counts token validations by result.
var TokenValidations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sessionauth_token_validations_total",
		Help: "Total number of session token validations by result",
	},
	[]string{"result"},
)

// Logins counts login attempts by result.
var Logins = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sessionauth_logins_total",
		Help: "Total number of login attempts by result",
	},
	[]string{"result"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(CredentialChecks)
	reg.MustRegister(TokenValidations)
	reg.MustRegister(Logins)
}

// RecordCredentialCheck increments the credential check counter.
func RecordCredentialCheck(result string) {
	CredentialChecks.WithLabelValues(result).Inc()
}

func recordTokenValidation(ok bool) {
	if ok {
		TokenValidations.WithLabelValues(ResultValid).Inc()
		return
	}
	TokenValidations.WithLabelValues(ResultInvalid).Inc()
}

func recordLogin(ok bool) {
	if ok {
		Logins.WithLabelValues(ResultSuccess).Inc()
		return
	}
	Logins.WithLabelValues(ResultFailure).Inc()
}
