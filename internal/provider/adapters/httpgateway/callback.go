package httpgateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/settlement/internal/provider/domain"
)

const (
	SignatureHeader    = "X-Gateway-Signature"
	signatureTolerance = 5 * time.Minute
)

type callbackEvent struct {
	Type string `json:"type"`
	Data struct {
		ID        string `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// ParseCallback checks the "t=<unix>,v1=<hex hmac>" signature over "<t>.<body>"
// and decodes the event.
func (g *Gateway) ParseCallback(payload []byte, headers http.Header) (domain.Callback, error) {
	if err := g.verifySignature(payload, headers.Get(SignatureHeader)); err != nil {
		return domain.Callback{}, err
	}

	var event callbackEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.Callback{}, fmt.Errorf("%w: %v", domain.ErrInvalidCallback, err)
	}
	kind, ok := callbackKinds[strings.SplitN(strings.TrimSpace(event.Type), ".", 2)[0]]
	if !ok {
		return domain.Callback{}, fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidCallback, event.Type)
	}
	if event.Data.ID == "" && event.Data.Reference == "" {
		return domain.Callback{}, fmt.Errorf("%w: missing reference", domain.ErrInvalidCallback)
	}
	return domain.Callback{
		Kind:              kind,
		Reference:         event.Data.Reference,
		ExternalReference: event.Data.ID,
		Status:            domain.ParseStatus(event.Data.Status),
	}, nil
}

var callbackKinds = map[string]domain.CallbackKind{
	"payment": domain.CallbackPayment,
	"refund":  domain.CallbackRefund,
	"payout":  domain.CallbackPayout,
}

func (g *Gateway) verifySignature(payload []byte, header string) error {
	if g.webhookSecret == "" {
		return domain.ErrInvalidSignature
	}
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return domain.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	if age := g.now().Sub(time.Unix(unix, 0)); age > signatureTolerance || age < -signatureTolerance {
		return domain.ErrInvalidSignature
	}

	expected := Sign(g.webhookSecret, timestamp, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

// Sign computes the v1 signature for payload sent at timestamp.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp + "." + string(payload)))
	return hex.EncodeToString(mac.Sum(nil))
}
