package crypto

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptedKeyFile(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != testKeyHex {
		t.Fatalf("DecryptKey = %s, want %s", got, testKeyHex)
	}

	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}

	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatal(err)
	}
	pk, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	want, _ := ethcrypto.HexToECDSA(testKeyHex)
	if Address(pk) != Address(want) {
		t.Errorf("LoadKey address = %s, want %s", Address(pk).Hex(), Address(want).Hex())
	}
}

func TestEncryptKeyRejectsBadInput(t *testing.T) {
	if _, err := EncryptKey(testKeyHex, ""); err == nil {
		t.Error("expected error for empty password")
	}
	if _, err := EncryptKey("zz", "pw"); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := EncryptKey("abcd", "pw"); err == nil {
		t.Error("expected error for short key")
	}
}

func TestLoadKey(t *testing.T) {
	pk, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	if err != nil {
		t.Fatalf("LoadKey raw: %v", err)
	}
	if Address(pk) == (common.Address{}) {
		t.Fatal("zero address from raw key")
	}

	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Error("expected error without key source")
	}
	if _, err := LoadKey(KeyConfig{RawPrivateKey: "not-hex"}); err == nil {
		t.Error("expected error for invalid raw key")
	}
}

func sampleSignedOrder(maker common.Address) domain.SignedOrder {
	return domain.SignedOrder{
		Maker:                      maker,
		MakerFee:                   big.NewInt(0),
		TakerFee:                   big.NewInt(0),
		MakerTokenAmount:           big.NewInt(1_000_000_000_000_000_000),
		TakerTokenAmount:           big.NewInt(2_000_000_000_000_000),
		MakerTokenAddress:          common.HexToAddress("0x6ff6c0ff1d68b964901f986d4c9fa3ac68346570"),
		TakerTokenAddress:          common.HexToAddress("0x05d090b51c40b020eab3bfcb6a2dff130df22e9c"),
		ExchangeContractAddress:    common.HexToAddress("0x90fe2af704b34e0224bf2299c838e04d4dcf1364"),
		ExpirationUnixTimestampSec: big.NewInt(1_900_000_000),
		Salt:                       big.NewInt(123456789),
	}
}

func TestOrderHashCoversEveryField(t *testing.T) {
	base := sampleSignedOrder(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	h := OrderHash(base)
	if h != OrderHash(base) {
		t.Fatal("OrderHash is not deterministic")
	}

	mutations := map[string]func(o *domain.SignedOrder){
		"salt":       func(o *domain.SignedOrder) { o.Salt = big.NewInt(1) },
		"taker":      func(o *domain.SignedOrder) { o.Taker = common.HexToAddress("0x02") },
		"takerFee":   func(o *domain.SignedOrder) { o.TakerFee = big.NewInt(1) },
		"exchange":   func(o *domain.SignedOrder) { o.ExchangeContractAddress = common.HexToAddress("0x03") },
		"expiration": func(o *domain.SignedOrder) { o.ExpirationUnixTimestampSec = big.NewInt(1) },
	}
	for name, mutate := range mutations {
		o := base
		mutate(&o)
		if OrderHash(o) == h {
			t.Errorf("changing %s did not change the hash", name)
		}
	}
}

func TestVerifySignature(t *testing.T) {
	pk, _ := ethcrypto.HexToECDSA(testKeyHex)
	maker := Address(pk)
	hash := OrderHash(sampleSignedOrder(maker))

	raw, err := ethcrypto.Sign(personalHash(hash), pk)
	if err != nil {
		t.Fatal(err)
	}
	sig := domain.ECSignature{
		V: raw[64] + 27,
		R: common.BytesToHash(raw[:32]),
		S: common.BytesToHash(raw[32:64]),
	}

	if !VerifySignature(hash, sig, maker) {
		t.Fatal("valid signature rejected")
	}
	if VerifySignature(hash, sig, common.HexToAddress("0x1234")) {
		t.Error("signature accepted for another signer")
	}
	other := hash
	other[0] ^= 0xff
	if VerifySignature(other, sig, maker) {
		t.Error("signature accepted for another hash")
	}
	sig.V = 29
	if VerifySignature(hash, sig, maker) {
		t.Error("signature accepted with invalid v")
	}
}
