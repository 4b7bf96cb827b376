package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/relaytaker/internal/domain"
	"github.com/alanyoungcy/relaytaker/internal/units"
)

// flexString accepts a JSON string or a bare JSON number. Relays disagree
// on whether amounts and signature v are quoted.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

// APISignature is the maker's ecSignature object.
type APISignature struct {
	V flexString `json:"v"`
	R string     `json:"r"`
	S string     `json:"s"`
}

// APIOrder is an order record as served by GET /api/v0/orders.
type APIOrder struct {
	Maker                      string        `json:"maker"`
	Taker                      *string       `json:"taker"`
	MakerFee                   flexString    `json:"makerFee"`
	TakerFee                   flexString    `json:"takerFee"`
	MakerTokenAmount           flexString    `json:"makerTokenAmount"`
	TakerTokenAmount           flexString    `json:"takerTokenAmount"`
	MakerTokenAddress          string        `json:"makerTokenAddress"`
	TakerTokenAddress          string        `json:"takerTokenAddress"`
	Salt                       flexString    `json:"salt"`
	ExchangeContractAddress    string        `json:"exchangeContractAddress"`
	FeeRecipient               string        `json:"feeRecipient"`
	ExpirationUnixTimestampSec flexString    `json:"expirationUnixTimestampSec"`
	ECSignature                *APISignature `json:"ecSignature"`
	ValueRequired              string        `json:"valueRequired,omitempty"`
}

// APITokenPair is a record from GET /api/v0/token_pairs.
type APITokenPair struct {
	TokenA *APIPairSide `json:"tokenA"`
	TokenB *APIPairSide `json:"tokenB"`
}

// APIPairSide is one side of a token pair. Relays also send precision and
// size limits, which are not used.
type APIPairSide struct {
	Address string `json:"address"`
}

// ToDomainOrder validates the record and converts it. Every failure is
// reported as domain.ErrRelayResponse.
func (a APIOrder) ToDomainOrder() (domain.Order, error) {
	var (
		o   domain.Order
		err error
	)

	if o.Maker, err = requiredAddress("maker", a.Maker); err != nil {
		return domain.Order{}, err
	}
	if a.Taker != nil && *a.Taker != "" {
		if o.Taker, err = requiredAddress("taker", *a.Taker); err != nil {
			return domain.Order{}, err
		}
	}
	if o.MakerTokenAddress, err = requiredAddress("makerTokenAddress", a.MakerTokenAddress); err != nil {
		return domain.Order{}, err
	}
	if o.TakerTokenAddress, err = requiredAddress("takerTokenAddress", a.TakerTokenAddress); err != nil {
		return domain.Order{}, err
	}
	if o.ExchangeContractAddress, err = requiredAddress("exchangeContractAddress", a.ExchangeContractAddress); err != nil {
		return domain.Order{}, err
	}
	if a.FeeRecipient != "" {
		if o.FeeRecipient, err = requiredAddress("feeRecipient", a.FeeRecipient); err != nil {
			return domain.Order{}, err
		}
	}

	if o.MakerTokenAmount, err = requiredAmount("makerTokenAmount", a.MakerTokenAmount); err != nil {
		return domain.Order{}, err
	}
	if o.TakerTokenAmount, err = requiredAmount("takerTokenAmount", a.TakerTokenAmount); err != nil {
		return domain.Order{}, err
	}
	if o.MakerFee, err = optionalAmount("makerFee", a.MakerFee); err != nil {
		return domain.Order{}, err
	}
	if o.TakerFee, err = optionalAmount("takerFee", a.TakerFee); err != nil {
		return domain.Order{}, err
	}
	if o.Salt, err = requiredInteger("salt", a.Salt); err != nil {
		return domain.Order{}, err
	}
	if o.ExpirationUnixTimestampSec, err = requiredInteger("expirationUnixTimestampSec", a.ExpirationUnixTimestampSec); err != nil {
		return domain.Order{}, err
	}

	if o.ECSignature, err = a.ECSignature.toDomain(); err != nil {
		return domain.Order{}, err
	}

	o.ValueRequired = a.ValueRequired
	return o, nil
}

func (s *APISignature) toDomain() (domain.ECSignature, error) {
	if s == nil {
		return domain.ECSignature{}, missing("ecSignature")
	}
	if s.V == "" {
		return domain.ECSignature{}, missing("ecSignature.v")
	}
	v, err := strconv.ParseUint(string(s.V), 10, 8)
	if err != nil {
		return domain.ECSignature{}, malformed("ecSignature.v", string(s.V))
	}
	r, err := requiredHash("ecSignature.r", s.R)
	if err != nil {
		return domain.ECSignature{}, err
	}
	sv, err := requiredHash("ecSignature.s", s.S)
	if err != nil {
		return domain.ECSignature{}, err
	}
	return domain.ECSignature{V: uint8(v), R: r, S: sv}, nil
}

// ToDomainPair validates both sides of the record.
func (a APITokenPair) ToDomainPair() (domain.TokenPair, error) {
	if a.TokenA == nil {
		return domain.TokenPair{}, missing("tokenA")
	}
	if a.TokenB == nil {
		return domain.TokenPair{}, missing("tokenB")
	}
	tokenA, err := requiredAddress("tokenA.address", a.TokenA.Address)
	if err != nil {
		return domain.TokenPair{}, err
	}
	tokenB, err := requiredAddress("tokenB.address", a.TokenB.Address)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{TokenA: tokenA, TokenB: tokenB}, nil
}

// APIOrderFromDomain renders an order in the relay's wire format.
func APIOrderFromDomain(o domain.Order) APIOrder {
	var taker *string
	if !o.IsOpen() {
		t := hexAddress(o.Taker)
		taker = &t
	}
	return APIOrder{
		Maker:                      hexAddress(o.Maker),
		Taker:                      taker,
		MakerFee:                   flexString(o.MakerFee.String()),
		TakerFee:                   flexString(o.TakerFee.String()),
		MakerTokenAmount:           flexString(o.MakerTokenAmount.String()),
		TakerTokenAmount:           flexString(o.TakerTokenAmount.String()),
		MakerTokenAddress:          hexAddress(o.MakerTokenAddress),
		TakerTokenAddress:          hexAddress(o.TakerTokenAddress),
		Salt:                       flexString(o.Salt.String()),
		ExchangeContractAddress:    hexAddress(o.ExchangeContractAddress),
		FeeRecipient:               hexAddress(o.FeeRecipient),
		ExpirationUnixTimestampSec: flexString(o.ExpirationUnixTimestampSec.String()),
		ECSignature: &APISignature{
			V: flexString(strconv.Itoa(int(o.ECSignature.V))),
			R: o.ECSignature.R.Hex(),
			S: o.ECSignature.S.Hex(),
		},
		ValueRequired: o.ValueRequired,
	}
}

// DecodeOrder parses a single relay order record.
func DecodeOrder(data []byte) (domain.Order, error) {
	var a APIOrder
	if err := json.Unmarshal(data, &a); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrRelayResponse, err)
	}
	return a.ToDomainOrder()
}

// hexAddress is the lower-case form relays index by.
func hexAddress(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func missing(field string) error {
	return fmt.Errorf("%w: missing %s", domain.ErrRelayResponse, field)
}

func malformed(field, value string) error {
	return fmt.Errorf("%w: malformed %s %q", domain.ErrRelayResponse, field, value)
}

func requiredAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, missing(field)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, malformed(field, s)
	}
	return common.HexToAddress(s), nil
}

func requiredHash(field, s string) (common.Hash, error) {
	if s == "" {
		return common.Hash{}, missing(field)
	}
	h := strings.TrimPrefix(s, "0x")
	if len(h) != 2*common.HashLength || !isHex(h) {
		return common.Hash{}, malformed(field, s)
	}
	return common.HexToHash(s), nil
}

func requiredAmount(field string, s flexString) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, missing(field)
	}
	d, err := units.Parse(string(s))
	if err != nil {
		return decimal.Zero, malformed(field, string(s))
	}
	return d, nil
}

func optionalAmount(field string, s flexString) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return requiredAmount(field, s)
}

func requiredInteger(field string, s flexString) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, missing(field)
	}
	d, err := units.ParseInteger(string(s))
	if err != nil {
		return decimal.Zero, malformed(field, string(s))
	}
	return d, nil
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
