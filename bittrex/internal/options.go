// Copyright (c) 2026 BVK Chaitanya

package internal

import (
	"fmt"
	"net/url"
	"time"
)

var RestURL = url.URL{
	Scheme: "https",
	Host:   "api.bittrex.com",
	Path:   "/v3",
}

type Options struct {
	// RestURL is the base url for the REST api endpoints.
	RestURL string

	HttpClientTimeout time.Duration

	// RequestsPerSecond limits the api call rate across all accounts.
	RequestsPerSecond float64

	// MaxRetries limits the number of retries on throttled responses.
	MaxRetries int
}

func (v *Options) setDefaults() {
	if v.RestURL == "" {
		v.RestURL = RestURL.String()
	}
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = 10 * time.Second
	}
	if v.RequestsPerSecond == 0 {
		v.RequestsPerSecond = 10
	}
	if v.MaxRetries == 0 {
		v.MaxRetries = 5
	}
}

// Check validates the options.
func (v *Options) Check() error {
	if _, err := url.Parse(v.RestURL); err != nil {
		return fmt.Errorf("invalid rest url %q: %w", v.RestURL, err)
	}
	if v.HttpClientTimeout < 0 || v.RequestsPerSecond < 0 || v.MaxRetries < 0 {
		return fmt.Errorf("bittrex client options cannot be negative")
	}
	return nil
}
