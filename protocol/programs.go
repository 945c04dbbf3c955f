package protocol

import "encoding/binary"

// Fireball (recipe / dish) instructions.

type StartDishAccounts struct {
	Recipe Pubkey
	Dish   Pubkey
	Payer  Pubkey
}

func StartDish(program Pubkey, dishBump uint8, a StartDishAccounts) Instruction {
	return Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			Readonly(a.Recipe, false),
			Writable(a.Dish, false),
			Writable(a.Payer, true),
			Readonly(SystemProgramID, false),
		},
		Data:     newMethodData("start_dish").u8(dishBump).bytes(),
		FeePayer: a.Payer,
	}
}

type AddIngredientAccounts struct {
	Recipe          Pubkey
	Dish            Pubkey
	IngredientMint  Pubkey
	IngredientStore Pubkey
	Payer           Pubkey
	From            Pubkey
}

func AddIngredient(program Pubkey, storeBump uint8, group uint64, proof [][32]byte, a AddIngredientAccounts) Instruction {
	return Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			Readonly(a.Recipe, false),
			Writable(a.Dish, false),
			Readonly(a.IngredientMint, false),
			Writable(a.IngredientStore, false),
			Writable(a.Payer, true),
			Writable(a.From, false),
			Readonly(SystemProgramID, false),
			Readonly(TokenProgramID, false),
			Readonly(SysvarRentID, false),
		},
		Data:     newMethodData("add_ingredient").u8(storeBump).u64(group).hashes(proof).bytes(),
		FeePayer: a.Payer,
	}
}

type RemoveIngredientAccounts struct {
	Dish            Pubkey
	IngredientMint  Pubkey
	IngredientStore Pubkey
	Payer           Pubkey
	To              Pubkey
}

func RemoveIngredient(program Pubkey, storeBump uint8, group uint64, a RemoveIngredientAccounts) Instruction {
	return Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			Writable(a.Dish, false),
			Readonly(a.IngredientMint, false),
			Writable(a.IngredientStore, false),
			Writable(a.Payer, true),
			Writable(a.To, false),
			Readonly(SystemProgramID, false),
			Readonly(TokenProgramID, false),
			Readonly(SysvarRentID, false),
		},
		Data:     newMethodData("remove_ingredient").u8(storeBump).u64(group).bytes(),
		FeePayer: a.Payer,
	}
}

// EditionPrintAccounts are the token-metadata accounts shared by every
// instruction that prints a new edition from a master edition.
type EditionPrintAccounts struct {
	NewMetadata        Pubkey
	NewEdition         Pubkey
	MasterEdition      Pubkey
	NewMint            Pubkey
	EditionMarker      Pubkey
	NewMintAuthority   Pubkey
	MasterTokenAccount Pubkey
	NewUpdateAuthority Pubkey
	MasterMetadata     Pubkey
	MasterMint         Pubkey
}

func (e EditionPrintAccounts) metas() []AccountMeta {
	return []AccountMeta{
		Writable(e.NewMetadata, false),
		Writable(e.NewEdition, false),
		Writable(e.MasterEdition, false),
		Writable(e.NewMint, false),
		Writable(e.EditionMarker, false),
		Readonly(e.NewMintAuthority, true),
		Readonly(e.MasterTokenAccount, false),
		Readonly(e.NewUpdateAuthority, false),
		Readonly(e.MasterMetadata, false),
		Readonly(e.MasterMint, false),
	}
}

func programTail() []AccountMeta {
	return []AccountMeta{
		Readonly(SystemProgramID, false),
		Readonly(TokenProgramID, false),
		Readonly(TokenMetadataProgramID, false),
		Readonly(SysvarRentID, false),
	}
}

type MakeDishAccounts struct {
	Recipe           Pubkey
	Dish             Pubkey
	Payer            Pubkey
	MasterTokenOwner Pubkey
	Print            EditionPrintAccounts
}

func MakeDish(program Pubkey, ownerBump uint8, edition uint64, a MakeDishAccounts) Instruction {
	metas := []AccountMeta{
		Readonly(a.Recipe, false),
		Writable(a.Dish, false),
		Writable(a.Payer, true),
		Readonly(a.MasterTokenOwner, false),
	}
	metas = append(metas, a.Print.metas()...)
	metas = append(metas, programTail()...)
	return Instruction{
		ProgramID: program,
		Accounts:  metas,
		Data:      newMethodData("make_dish").u8(ownerBump).u64(edition).bytes(),
		FeePayer:  a.Payer,
	}
}

// Gumdrop instructions.

type ClaimEditionArgs struct {
	ClaimBump uint8
	Index     uint64
	Amount    uint64
	Edition   uint64
	Secret    Pubkey
	Proof     [][32]byte
}

type ClaimEditionAccounts struct {
	Distributor Pubkey
	ClaimCount  Pubkey
	Temporal    Pubkey
	Payer       Pubkey
	Print       EditionPrintAccounts
}

func ClaimEdition(program Pubkey, args ClaimEditionArgs, a ClaimEditionAccounts) Instruction {
	metas := []AccountMeta{
		Writable(a.Distributor, false),
		Writable(a.ClaimCount, false),
		Readonly(a.Temporal, true),
		Writable(a.Payer, true),
	}
	metas = append(metas, a.Print.metas()...)
	metas = append(metas, programTail()...)
	data := newMethodData("claim_edition").
		u8(args.ClaimBump).
		u64(args.Index).
		u64(args.Amount).
		u64(args.Edition).
		pubkey(args.Secret).
		hashes(args.Proof).
		bytes()
	return Instruction{
		ProgramID: program,
		Accounts:  metas,
		Data:      data,
		FeePayer:  a.Payer,
	}
}

// System, token and associated-token instructions used to create the mint
// that receives a printed edition.

func CreateAccount(from, newAccount Pubkey, lamports, space uint64, owner Pubkey) Instruction {
	data := make([]byte, 0, 4+8+8+32)
	data = binary.LittleEndian.AppendUint32(data, 0)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	data = binary.LittleEndian.AppendUint64(data, space)
	data = append(data, owner[:]...)
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			Writable(from, true),
			Writable(newAccount, true),
		},
		Data:     data,
		FeePayer: from,
	}
}

func InitializeMint(mint Pubkey, decimals uint8, mintAuthority, freezeAuthority Pubkey) Instruction {
	data := []byte{0, decimals}
	data = append(data, mintAuthority[:]...)
	if freezeAuthority.IsZero() {
		data = append(data, 0)
		data = append(data, make([]byte, 32)...)
	} else {
		data = append(data, 1)
		data = append(data, freezeAuthority[:]...)
	}
	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			Writable(mint, false),
			Readonly(SysvarRentID, false),
		},
		Data: data,
	}
}

func CreateAssociatedTokenAccount(payer, ata, owner, mint Pubkey) Instruction {
	return Instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts: []AccountMeta{
			Writable(payer, true),
			Writable(ata, false),
			Readonly(owner, false),
			Readonly(mint, false),
			Readonly(SystemProgramID, false),
			Readonly(TokenProgramID, false),
			Readonly(SysvarRentID, false),
		},
		FeePayer: payer,
	}
}

func MintTo(mint, dest, authority Pubkey, amount uint64) Instruction {
	data := binary.LittleEndian.AppendUint64([]byte{7}, amount)
	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			Writable(mint, false),
			Writable(dest, false),
			Readonly(authority, true),
		},
		Data: data,
	}
}

// NewMintInstructions creates mint, initializes it with wallet as authority,
// opens wallet's associated account and mints one token into it.
func NewMintInstructions(wallet, mint Pubkey, rentLamports uint64) ([]Instruction, error) {
	ata, err := AssociatedTokenAddress(wallet, mint)
	if err != nil {
		return nil, err
	}
	return []Instruction{
		CreateAccount(wallet, mint, rentLamports, MintAccountBytes, TokenProgramID),
		InitializeMint(mint, 0, wallet, wallet),
		CreateAssociatedTokenAccount(wallet, ata, wallet, mint),
		MintTo(mint, ata, wallet, 1),
	}, nil
}
