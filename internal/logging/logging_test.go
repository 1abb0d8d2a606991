/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupLevels(t *testing.T) {
	if got := Setup("development").GetLevel(); got != zerolog.DebugLevel {
		t.Fatalf("development level = %v, want debug", got)
	}
	if got := Setup("production").GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("production level = %v, want info", got)
	}
}

func TestSetupWithWriterCopiesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("production", &buf)
	logger.Info().Str("route", "A").Msg("slots regenerated")

	out := buf.String()
	if !strings.Contains(out, `"route":"A"`) || !strings.Contains(out, "slots regenerated") {
		t.Fatalf("unexpected log output: %s", out)
	}
}
