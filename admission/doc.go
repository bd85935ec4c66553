// Package admission throttles transition submissions before they reach
// the state machine.
//
// Requests are grouped by source class (the transition source string:
// "manual", "geofence", "system") and, within a class, by the submitting
// company. Each class and each company can carry a token-bucket rate
// limit and an in-flight cap.
//
// Use [Config] to set per-class limits and pass them to the controller:
//
//	ctrl := admission.NewController(admission.Config{
//	    Source:      "manual",
//	    MaxInFlight: 50,       // at most 50 manual requests applying at once
//	    RateLimit:   100,      // max 100 manual submissions/s
//	    RateBurst:   200,      // allow bursts up to 200
//	})
//
// Company overrides stack on top of class limits: a noisy company can be
// capped without touching anyone else via [Controller.SetCompanyConfig].
// Unconfigured classes and companies are never throttled.
package admission
