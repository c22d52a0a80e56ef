// Package dispatch implements the notification dispatcher: it consumes
// alert lifecycle events, fans them out to the responsible contacts, and
// drives each delivery attempt through the provider channels with retry,
// backoff, and a three-way failure taxonomy.
package dispatch

import (
	"encoding/json"
	"fmt"

	"freshtrack/internal/types"
)

// Taxonomy maps provider error codes to failure categories per channel.
// Codes absent from the table classify as unknown, and unknown is retried:
// a wasted retry beats a silently dropped safety-critical alert.
//
// The built-in tables cover the codes the providers document today; the
// table is extensible at deploy time through DISPATCH_ERROR_CODES_JSON so a
// newly observed code can be reclassified without a release.
type Taxonomy struct {
	codes map[types.ChannelType]map[string]types.FailureCategory
}

// builtinCodes is the shipped provider error classification.
var builtinCodes = map[types.ChannelType]map[string]types.FailureCategory{
	types.ChannelSMS: {
		// Twilio-style codes.
		"21211": types.FailureUnrecoverable, // invalid 'To' number
		"21408": types.FailureUnrecoverable, // region not enabled
		"21610": types.FailureUnrecoverable, // recipient opted out
		"21614": types.FailureUnrecoverable, // not a mobile number
		"30003": types.FailureRetryable,     // unreachable handset
		"30005": types.FailureUnrecoverable, // unknown destination
		"30006": types.FailureUnrecoverable, // landline or unreachable carrier
		"20429": types.FailureRetryable,     // too many requests
		"20500": types.FailureRetryable,     // provider internal error
		"20503": types.FailureRetryable,     // service unavailable
	},
	types.ChannelEmail: {
		// SendGrid-style HTTP statuses and bounce classes.
		"400":          types.FailureUnrecoverable, // malformed request
		"401":          types.FailureUnrecoverable, // bad credentials, alert on-call not retry
		"413":          types.FailureUnrecoverable, // payload too large
		"429":          types.FailureRetryable,     // rate limited
		"500":          types.FailureRetryable,
		"502":          types.FailureRetryable,
		"503":          types.FailureRetryable,
		"bounce":       types.FailureUnrecoverable, // hard bounce
		"blocked":      types.FailureUnrecoverable,
		"invalid":      types.FailureUnrecoverable,
		"spam_report":  types.FailureUnrecoverable,
		"soft_bounce":  types.FailureRetryable,
		"deferred":     types.FailureRetryable,
	},
}

// blockedCodes are unrecoverable codes that additionally mean the
// destination itself is dead (opted out, bounced, spam report), so the
// contact should be disabled to stop burning attempts on it.
var blockedCodes = map[string]bool{
	"21610":       true,
	"30005":       true,
	"30006":       true,
	"bounce":      true,
	"blocked":     true,
	"invalid":     true,
	"spam_report": true,
}

// NewTaxonomy builds the taxonomy from the built-in tables plus the
// optional JSON extension. The extension format is
// {"sms": {"30007": "unrecoverable"}, "email": {"451": "retryable"}};
// extension entries override built-ins for the same code.
func NewTaxonomy(extensionJSON string) (*Taxonomy, error) {
	codes := make(map[types.ChannelType]map[string]types.FailureCategory, len(builtinCodes))
	for ch, table := range builtinCodes {
		copied := make(map[string]types.FailureCategory, len(table))
		for code, cat := range table {
			copied[code] = cat
		}
		codes[ch] = copied
	}

	if extensionJSON != "" {
		var ext map[string]map[string]string
		if err := json.Unmarshal([]byte(extensionJSON), &ext); err != nil {
			return nil, fmt.Errorf("dispatch: invalid error code extension JSON: %w", err)
		}
		for ch, table := range ext {
			channel := types.ChannelType(ch)
			if codes[channel] == nil {
				codes[channel] = make(map[string]types.FailureCategory)
			}
			for code, cat := range table {
				category := types.FailureCategory(cat)
				switch category {
				case types.FailureUnrecoverable, types.FailureRetryable, types.FailureUnknown:
					codes[channel][code] = category
				default:
					return nil, fmt.Errorf("dispatch: unknown failure category %q for code %s", cat, code)
				}
			}
		}
	}

	return &Taxonomy{codes: codes}, nil
}

// Classify maps a provider error code to its failure category.
func (t *Taxonomy) Classify(channel types.ChannelType, code string) types.FailureCategory {
	if table, ok := t.codes[channel]; ok {
		if cat, ok := table[code]; ok {
			return cat
		}
	}
	return types.FailureUnknown
}

// DestinationBlocked reports whether the code means the destination itself
// should be disabled.
func DestinationBlocked(code string) bool {
	return blockedCodes[code]
}
