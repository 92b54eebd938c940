// Package pda derives the pump.fun accounts tied to a token mint.
package pda

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// BondingCurve derives the bonding-curve account of mint.
func BondingCurve(mint solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(SeedBondingCurve), mint.Bytes()},
		PumpProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive bonding curve: %w", err)
	}
	return pk, nil
}

// AssociatedBondingCurve derives the bonding curve's SPL token account for mint.
func AssociatedBondingCurve(mint solana.PublicKey) (solana.PublicKey, error) {
	curve, err := BondingCurve(mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return associatedTokenAddress(curve, mint)
}

// Metadata derives the Metaplex metadata account of mint.
func Metadata(mint solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(SeedMetadata), MetadataProgramID[:], mint[:]},
		MetadataProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive metadata: %w", err)
	}
	return pk, nil
}

// Global derives the pump.fun global config account.
func Global() (solana.PublicKey, error) {
	pk, _, err := solana.FindProgramAddress([][]byte{[]byte(SeedGlobal)}, PumpProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive global: %w", err)
	}
	return pk, nil
}

// Accounts groups the derived addresses for one mint.
type Accounts struct {
	Mint                   solana.PublicKey
	BondingCurve           solana.PublicKey
	AssociatedBondingCurve solana.PublicKey
	Metadata               solana.PublicKey
}

// ForMint derives every account the create instruction touches for mint.
func ForMint(mint solana.PublicKey) (Accounts, error) {
	out := Accounts{Mint: mint}
	var err error
	if out.BondingCurve, err = BondingCurve(mint); err != nil {
		return out, err
	}
	if out.AssociatedBondingCurve, err = associatedTokenAddress(out.BondingCurve, mint); err != nil {
		return out, err
	}
	if out.Metadata, err = Metadata(mint); err != nil {
		return out, err
	}
	return out, nil
}

func associatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := solana.FindProgramAddress([][]byte{
		owner[:],
		TokenProgramID[:],
		mint[:],
	}, AssociatedTokenProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token account: %w", err)
	}
	return pk, nil
}
