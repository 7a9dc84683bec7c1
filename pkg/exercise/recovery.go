package exercise

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/entrhq/orthoforge/pkg/browser"
	"github.com/entrhq/orthoforge/pkg/llm"
	"github.com/entrhq/orthoforge/pkg/logging"
)

// ScreenshotQuality is the JPEG quality of recovery screenshots. Low detail
// keeps the model request small.
const ScreenshotQuality = 30

// Recovery asks the language model which element would unblock a failed
// step and clicks it. It is single shot: one suggestion, one click.
type Recovery struct {
	LLM     llm.Client
	Log     *logging.Logger
	Timeout time.Duration
}

// Handle reports whether the session must restart. It returns false only
// when a suggested element was found and clicked.
func (r *Recovery) Handle(ctx context.Context, page browser.Page, sessionID string, cause error, where string) (restart bool) {
	logger := r.logger().With(sessionID)

	if page == nil || page.IsClosed() {
		logger.Warnf("%s failed on a closed page, restart required: %v", where, cause)
		return true
	}

	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	report := llm.ErrorReport{
		Message:   message,
		URL:       page.URL(),
		SessionID: sessionID,
		Context:   where,
	}

	shot, err := page.Screenshot(ScreenshotQuality)
	if err != nil {
		logger.Debugf("screenshot for recovery failed, continuing without: %v", err)
	} else {
		report.Screenshot = shot
	}

	logger.Infof("asking for recovery after %s failure: %s", where, message)
	suggestion, err := r.LLM.GetErrorReportSuggestion(ctx, report)
	if err != nil {
		logger.Warnf("recovery suggestion failed: %v", err)
		return true
	}

	suggestion = strings.TrimSpace(suggestion)
	if suggestion == "" || suggestion == llm.NoAction {
		logger.Infof("no recovery action suggested, restart required")
		return true
	}

	for _, selector := range []string{"text=" + strconv.Quote(suggestion), suggestion} {
		loc := page.Locator(selector)
		if !loc.IsVisible(r.Timeout) {
			continue
		}
		if err := loc.Click(r.Timeout); err != nil {
			logger.Warnf("recovery click on %s failed: %v", selector, err)
			return true
		}
		logger.Infof("recovered by clicking %s", selector)
		return false
	}

	logger.Warnf("suggested element %q not found, restart required", suggestion)
	return true
}

func (r *Recovery) logger() *logging.Logger {
	if r.Log == nil {
		return logging.Discard()
	}
	return r.Log
}
