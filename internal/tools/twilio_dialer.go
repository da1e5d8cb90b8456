package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"

	"github.com/lexiqai/voice-companion/internal/resilience"
)

// CallCreator creates an outbound call. Satisfied by twilio's v2010 API service.
type CallCreator interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// TwilioDialerConfig holds the account and routing settings of the dialer
type TwilioDialerConfig struct {
	AccountSID   string
	AuthToken    string
	FromNumber   string // Twilio number the call originates from
	BridgeNumber string // Owner's phone, rung first and then bridged to the target
}

// TwilioDialer rings the owner's phone and bridges it to the requested number
type TwilioDialer struct {
	config  TwilioDialerConfig
	calls   CallCreator
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewTwilioDialer creates a dialer backed by the Twilio REST API
func NewTwilioDialer(config TwilioDialerConfig, breaker *resilience.CircuitBreaker, retry *resilience.RetryConfig, logger zerolog.Logger) *TwilioDialer {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSID,
		Password: config.AuthToken,
	})
	return newTwilioDialer(config, client.Api, breaker, retry, logger)
}

func newTwilioDialer(config TwilioDialerConfig, calls CallCreator, breaker *resilience.CircuitBreaker, retry *resilience.RetryConfig, logger zerolog.Logger) *TwilioDialer {
	return &TwilioDialer{
		config:  config,
		calls:   calls,
		breaker: breaker,
		retry:   retry,
		logger:  logger.With().Str("component", "twilio_dialer").Logger(),
	}
}

// Dial starts the call in the background and returns immediately
func (d *TwilioDialer) Dial(ctx context.Context, number string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.placeCall(ctx, number); err != nil {
			d.logger.Error().Err(err).Str("to", number).Msg("Failed to place call")
		}
	}()
}

// Wait blocks until every background dial has finished
func (d *TwilioDialer) Wait() {
	d.wg.Wait()
}

func (d *TwilioDialer) placeCall(ctx context.Context, number string) error {
	bridge, err := BridgeTwiML(number)
	if err != nil {
		return err
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(d.config.BridgeNumber)
	params.SetFrom(d.config.FromNumber)
	params.SetTwiml(bridge)

	var sid string
	err = resilience.Retry(ctx, func(ctx context.Context) error {
		return d.breaker.Call(func() error {
			resp, err := d.calls.CreateCall(params)
			if err != nil {
				return err
			}
			if resp != nil && resp.Sid != nil {
				sid = *resp.Sid
			}
			return nil
		})
	}, d.retry, resilience.IsRetryableNetworkError)
	if err != nil {
		return fmt.Errorf("create call: %w", err)
	}

	d.logger.Info().
		Str("call_sid", sid).
		Str("to", number).
		Str("bridge", d.config.BridgeNumber).
		Msg("Call placed")
	return nil
}

// BridgeTwiML returns the TwiML that connects the answered leg to number
func BridgeTwiML(number string) (string, error) {
	doc, err := twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: "Connecting your call."},
		&twiml.VoiceDial{Number: number},
	})
	if err != nil {
		return "", fmt.Errorf("build twiml: %w", err)
	}
	return doc, nil
}
