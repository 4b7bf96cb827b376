package crypto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

// OrderHash returns the exchange's hash of a signed order: keccak256 over
// the tightly packed exchange, maker, taker, maker token, taker token and
// fee recipient addresses followed by the maker amount, taker amount, maker
// fee, taker fee, expiration and salt as 32-byte words.
func OrderHash(o domain.SignedOrder) common.Hash {
	buf := make([]byte, 0, 6*common.AddressLength+6*32)
	for _, a := range []common.Address{
		o.ExchangeContractAddress,
		o.Maker,
		o.Taker,
		o.MakerTokenAddress,
		o.TakerTokenAddress,
		o.FeeRecipient,
	} {
		buf = append(buf, a.Bytes()...)
	}
	for _, v := range []*big.Int{
		o.MakerTokenAmount,
		o.TakerTokenAmount,
		o.MakerFee,
		o.TakerFee,
		o.ExpirationUnixTimestampSec,
		o.Salt,
	} {
		buf = append(buf, word(v)...)
	}
	return ethcrypto.Keccak256Hash(buf)
}

// VerifySignature reports whether sig is signer's eth_sign signature over
// hash, which is how makers sign orders.
func VerifySignature(hash common.Hash, sig domain.ECSignature, signer common.Address) bool {
	if sig.V != 27 && sig.V != 28 {
		return false
	}
	raw := make([]byte, 65)
	copy(raw[:32], sig.R.Bytes())
	copy(raw[32:64], sig.S.Bytes())
	raw[64] = sig.V - 27

	pub, err := ethcrypto.SigToPub(personalHash(hash), raw)
	if err != nil {
		return false
	}
	return ethcrypto.PubkeyToAddress(*pub) == signer
}

func personalHash(hash common.Hash) []byte {
	return ethcrypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), hash.Bytes())
}

func word(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return math.U256Bytes(new(big.Int).Set(v))
}
