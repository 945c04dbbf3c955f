package protocol

type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

func Writable(k Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: k, IsSigner: signer, IsWritable: true}
}

func Readonly(k Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: k, IsSigner: signer, IsWritable: false}
}

// Instruction is one program invocation. FeePayer is optional; when set it
// names the account that must pay for whatever transaction carries it.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
	FeePayer  Pubkey
}

// Signers lists accounts flagged as signers, in declaration order, without
// duplicates.
func (ix Instruction) Signers() []Pubkey {
	var out []Pubkey
	seen := make(map[Pubkey]struct{})
	for _, m := range ix.Accounts {
		if !m.IsSigner {
			continue
		}
		if _, ok := seen[m.Pubkey]; ok {
			continue
		}
		seen[m.Pubkey] = struct{}{}
		out = append(out, m.Pubkey)
	}
	return out
}

// References reports whether k appears among the accounts or as program.
func (ix Instruction) References(k Pubkey) bool {
	if ix.ProgramID == k {
		return true
	}
	for _, m := range ix.Accounts {
		if m.Pubkey == k {
			return true
		}
	}
	return false
}
