package parser

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrInvalidCommand is returned for text that matches neither grammar form
// or carries an identifier that does not fit the target channel. Such posts
// are dropped by ingestion without creating any record.
var ErrInvalidCommand = errors.New("invalid transfer command")

const (
	ChannelTwitter = "twitter"
	ChannelGoogle  = "google"
	ChannelEvm     = "evm"
	ChannelSol     = "sol"

	// OctasPerToken positions the decimal point for the chain's native
	// 8-decimal minor unit.
	octasExponent = 8
)

// Intent is a validated transfer command extracted from raw feed text.
type Intent struct {
	Amount      decimal.Decimal
	AmountOctas uint64
	Token       string
	Identifier  string
	Channel     string
}

type Parser struct {
	tag            string
	withChannel    *regexp.Regexp
	withoutChannel *regexp.Regexp
	defaultChannel string
}

// New builds a parser for the given command tag (e.g. "aptsend"). Posts not
// starting with #<tag> never reach Parse, but the anchors keep it safe
// anyway. defaultChannel is the feed's own channel, used when the post omits
// an explicit one.
func New(tag, defaultChannel string) *Parser {
	quoted := regexp.QuoteMeta(tag)
	return &Parser{
		tag:            tag,
		withChannel:    regexp.MustCompile(`(?i)^#` + quoted + `\s+(\d+\.?\d*)\s+(\w+)\s+(\S+)\s+(\w+)`),
		withoutChannel: regexp.MustCompile(`(?i)^#` + quoted + `\s+(\d+\.?\d*)\s+(\w+)\s+(\S+)`),
		defaultChannel: defaultChannel,
	}
}

// HasTag reports whether the text opens with the command tag. Ingestion uses
// it to filter candidate posts before attempting a full parse.
func (p *Parser) HasTag(rawText string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(rawText)), "#"+strings.ToLower(p.tag))
}

// Parse turns raw post text into a transfer intent. The explicit-channel
// form is tried first; the channel-less form falls back to the feed's own
// channel. Identifier format is validated against the resolved channel.
func (p *Parser) Parse(rawText string) (*Intent, error) {
	text := strings.TrimSpace(rawText)

	// The explicit-channel match is authoritative: a matching command with a
	// bad identifier is rejected, not retried against the shorter form.
	if m := p.withChannel.FindStringSubmatch(text); m != nil {
		return p.buildIntent(m[1], m[2], m[3], strings.ToLower(m[4]))
	}

	if m := p.withoutChannel.FindStringSubmatch(text); m != nil {
		return p.buildIntent(m[1], m[2], m[3], p.defaultChannel)
	}

	return nil, fmt.Errorf("%w: text does not match command grammar", ErrInvalidCommand)
}

func (p *Parser) buildIntent(amountStr, token, identifier, channel string) (*Intent, error) {
	if !ValidIdentifierForChannel(identifier, channel) {
		return nil, fmt.Errorf("%w: identifier %q does not match channel %q", ErrInvalidCommand, identifier, channel)
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad amount %q", ErrInvalidCommand, amountStr)
	}
	return &Intent{
		Amount:      amount,
		AmountOctas: ToOctas(amount),
		Token:       strings.ToUpper(token),
		Identifier:  identifier,
		Channel:     channel,
	}, nil
}

// ToOctas converts a token amount to the chain's 8-decimal minor unit,
// rounding half away from zero. Exact for values representable in 8
// decimals.
func ToOctas(amount decimal.Decimal) uint64 {
	return uint64(amount.Shift(octasExponent).Round(0).IntPart())
}

// ValidIdentifierForChannel checks the identifier's shape against the
// channel's required format. Unknown channels are rejected outright.
func ValidIdentifierForChannel(identifier, channel string) bool {
	switch channel {
	case ChannelTwitter:
		return strings.HasPrefix(identifier, "@")
	case ChannelGoogle:
		if !strings.Contains(identifier, "@") {
			return false
		}
		_, err := mail.ParseAddress(identifier)
		return err == nil
	case ChannelEvm:
		return strings.HasPrefix(identifier, "0x") && len(identifier) == 42 && common.IsHexAddress(identifier)
	case ChannelSol:
		if len(identifier) < 32 || len(identifier) > 44 {
			return false
		}
		return len(base58.Decode(identifier)) > 0
	default:
		return false
	}
}
