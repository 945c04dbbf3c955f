package protocol

import (
	"encoding/binary"
	"strconv"
)

var (
	SystemProgramID          = MustPubkey("11111111111111111111111111111111")
	TokenProgramID           = MustPubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustPubkey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	TokenMetadataProgramID   = MustPubkey("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
	SysvarRentID             = MustPubkey("SysvarRent111111111111111111111111111111111")

	FireballProgramID = MustPubkey("9R4RuSGk3raAVf6TJ7o1ixywcDW89p1MSo2ns9LEBXNK")
	GumdropProgramID  = MustPubkey("gdrpGjVffourzkdDRrQmySw4aTHr8a3xmQzzxSwFD1a")

	// GumdropTemporalSigner is the OTP service's co-signing key.
	GumdropTemporalSigner = MustPubkey("MSv9H2sMceAzccBganUXwGq3GXgqYAstmZAbFDZYbAV")
)

var (
	fireballPrefix   = []byte("fireball")
	metadataPrefix   = []byte("metadata")
	editionSuffix    = []byte("edition")
	claimCountPrefix = []byte("ClaimCount")
)

// EditionMarkerBits is the number of editions tracked by one marker account.
const EditionMarkerBits = 248

func u64le(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func u32le(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

// DishAddress locates the redemption-session record of claimant for recipe.
func DishAddress(fireball, recipe, claimant Pubkey) (Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{fireballPrefix, recipe[:], claimant[:]}, fireball)
}

// IngredientStoreAddress locates the escrow for one ingredient group of a dish.
func IngredientStoreAddress(fireball, dish Pubkey, group uint64) (Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{fireballPrefix, dish[:], u64le(group)}, fireball)
}

// RecipeMintOwnerAddress is the recipe-owned custody address holding yields.
func RecipeMintOwnerAddress(fireball, recipe Pubkey) (Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{fireballPrefix, recipe[:]}, fireball)
}

func MetadataAddress(mint Pubkey) (Pubkey, error) {
	addr, _, err := FindProgramAddress([][]byte{metadataPrefix, TokenMetadataProgramID[:], mint[:]}, TokenMetadataProgramID)
	return addr, err
}

func EditionAddress(mint Pubkey) (Pubkey, error) {
	addr, _, err := FindProgramAddress([][]byte{metadataPrefix, TokenMetadataProgramID[:], mint[:], editionSuffix}, TokenMetadataProgramID)
	return addr, err
}

// EditionMarkerAddress locates the issuance marker covering edition.
func EditionMarkerAddress(mint Pubkey, edition uint64) (Pubkey, error) {
	page := []byte(strconv.FormatUint(edition/EditionMarkerBits, 10))
	addr, _, err := FindProgramAddress([][]byte{metadataPrefix, TokenMetadataProgramID[:], mint[:], editionSuffix, page}, TokenMetadataProgramID)
	return addr, err
}

func AssociatedTokenAddress(wallet, mint Pubkey) (Pubkey, error) {
	addr, _, err := FindProgramAddress([][]byte{wallet[:], TokenProgramID[:], mint[:]}, AssociatedTokenProgramID)
	return addr, err
}

// ClaimCountAddress locates the marker that records a claimed leaf index.
func ClaimCountAddress(gumdrop, distributor Pubkey, index uint64) (Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{claimCountPrefix, u64le(index), distributor[:]}, gumdrop)
}

// ClaimantAddress derives the claimant identity of a pin-gated distribution
// from its base, the master mint being distributed. The handle is split into
// 32-byte seeds. The returned seeds are the unchunked (base, handle, pin)
// triple the co-signing service expects.
func ClaimantAddress(gumdrop, base Pubkey, handle string, pin uint32) (Pubkey, [][]byte, error) {
	handleBytes := []byte(handle)
	pinBytes := u32le(pin)
	seeds := make([][]byte, 0, 2+len(handleBytes)/MaxSeedBytes+1)
	seeds = append(seeds, base[:])
	seeds = append(seeds, ChunkSeed(handleBytes, MaxSeedBytes)...)
	seeds = append(seeds, pinBytes)
	addr, _, err := FindProgramAddress(seeds, gumdrop)
	if err != nil {
		return Pubkey{}, nil, err
	}
	raw := [][]byte{base.Bytes(), handleBytes, pinBytes}
	return addr, raw, nil
}
