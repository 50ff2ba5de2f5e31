package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/edu-records-api/pkg/errors"
)

func appStatus(t *testing.T, err error) int {
	t.Helper()
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	return appErr.Status
}

func strptr(s string) *string { return &s }

func intptr(i int) *int { return &i }

func boolptr(b bool) *bool { return &b }

func floatptr(f float64) *float64 { return &f }
