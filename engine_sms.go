package authgate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authgate/autherr"
	"github.com/MrEthical07/authgate/internal"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/internal/stores"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxCaptchaSessionID = 128

// IssueCaptcha stores a fresh captcha answer for sessionID, generating a
// session id when none is given. Rendering the answer is the caller's job.
func (e *Engine) IssueCaptcha(ctx context.Context, sessionID string) (*CaptchaChallenge, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if len(sessionID) > maxCaptchaSessionID {
		return nil, fmt.Errorf("%w: session id too long", ErrInvalidRequest)
	}

	answer, err := internal.NewCaptchaText(e.config.Captcha.Length)
	if err != nil {
		return nil, err
	}
	if err := e.captchas.Put(ctx, sessionID, answer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &CaptchaChallenge{SessionID: sessionID, Answer: answer, ExpiresIn: e.config.Captcha.TTL}, nil
}

// SendSMSCode sends a login code to phone. When SMS.RequireCaptcha is set
// the captcha answer for captchaSessionID is redeemed first; any attempt
// burns it. A phone gets one code per SMS.SendInterval.
func (e *Engine) SendSMSCode(ctx context.Context, phone, captchaSessionID, captchaAnswer string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	phone = strings.TrimSpace(phone)
	if !e.validPhone(phone) {
		return ErrInvalidPhone
	}
	if e.sms == nil {
		return ErrSMSUnavailable
	}

	if e.config.SMS.RequireCaptcha {
		if err := e.verifyCaptcha(ctx, captchaSessionID, captchaAnswer); err != nil {
			return err
		}
	}

	if err := e.smsRate.Allow(ctx, phone); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			wait, _ := e.smsRate.RetryAfter(ctx, phone)
			return fmt.Errorf("%w: try again in %s", ErrSMSRateLimited, autherr.FormatWait(wait))
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	code, err := internal.NewNumericCode(e.config.SMS.CodeDigits)
	if err != nil {
		return err
	}
	if err := e.smsCodes.Put(ctx, phone, code); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.sms.SendCode(ctx, phone, code); err != nil {
		e.logger.Warn("sms delivery failed", zap.String("phone", maskPhone(phone)), zap.Error(err))
		if derr := e.smsCodes.Discard(ctx, phone); derr != nil {
			e.logger.Warn("discard undelivered sms code", zap.Error(derr))
		}
		if rerr := e.smsRate.Reset(ctx, phone); rerr != nil {
			e.logger.Warn("reset sms window", zap.Error(rerr))
		}
		return ErrSMSUnavailable
	}
	return nil
}

func (e *Engine) verifyCaptcha(ctx context.Context, sessionID, answer string) error {
	sessionID = strings.TrimSpace(sessionID)
	answer = strings.TrimSpace(answer)
	if sessionID == "" || answer == "" {
		return ErrCaptchaMismatch
	}
	switch err := e.captchas.Verify(ctx, sessionID, answer); {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrCodeNotFound), errors.Is(err, stores.ErrCodeMismatch):
		return ErrCaptchaMismatch
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// maskPhone keeps the first three and last four digits for logs.
func maskPhone(phone string) string {
	if len(phone) <= 7 {
		return "***"
	}
	return phone[:3] + strings.Repeat("*", len(phone)-7) + phone[len(phone)-4:]
}
