// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"
)

func TestNewThemeInitializesStyles(t *testing.T) {
	theme := NewTheme()
	if theme == nil {
		t.Fatal("NewTheme returned nil")
	}
	// A configured style should not equal the zero style.
	if theme.Header.GetBold() != true {
		t.Error("Header style should be bold")
	}
	if theme.ErrorTitle.GetBold() != true {
		t.Error("ErrorTitle style should be bold")
	}
}

func TestSetSize(t *testing.T) {
	theme := NewTheme()
	theme.SetSize(120, 40)
	if theme.Width != 120 || theme.Height != 40 {
		t.Errorf("Size = %dx%d, want 120x40", theme.Width, theme.Height)
	}
}

func TestStatusRenderersIncludeIndicators(t *testing.T) {
	if !strings.Contains(RenderSuccess("done"), "[OK]") {
		t.Error("RenderSuccess should include the [OK] indicator")
	}
	if !strings.Contains(RenderError("boom"), "[X]") {
		t.Error("RenderError should include the [X] indicator")
	}
	if !strings.Contains(RenderWarning("careful"), "[!]") {
		t.Error("RenderWarning should include the [!] indicator")
	}
	if !strings.Contains(RenderInfo("note"), "[i]") {
		t.Error("RenderInfo should include the [i] indicator")
	}
}
