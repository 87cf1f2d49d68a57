package payment

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/psm-labs/solpay"
	"github.com/psm-labs/solpay/connection"
)

// MemoProgramID is the SPL memo program (v2).
var MemoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// recipients of one payment
type recipients struct {
	payer    solana.PublicKey
	merchant solana.PublicKey
	fee      solana.PublicKey
}

// nativeInstructions transfers the merchant share and the fee in lamports.
func nativeInstructions(r recipients, split solpay.FeeSplit) []solana.Instruction {
	return []solana.Instruction{
		system.NewTransferInstruction(split.Merchant, r.payer, r.merchant).Build(),
		system.NewTransferInstruction(split.Fee, r.payer, r.fee).Build(),
	}
}

// stableInstructions creates the recipients' token accounts when they are
// missing, then transfers both shares from the payer's token account.
func stableInstructions(ctx context.Context, retrier *connection.Retrier, r recipients, mint solana.PublicKey, decimals uint8, split solpay.FeeSplit) ([]solana.Instruction, error) {
	payerATA, _, err := solana.FindAssociatedTokenAddress(r.payer, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive payer token account: %w", err)
	}

	var ixs []solana.Instruction
	destinations := make([]solana.PublicKey, 0, 2)
	for _, owner := range []solana.PublicKey{r.merchant, r.fee} {
		ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive token account for %s: %w", owner, err)
		}
		exists, err := connection.Retry(ctx, retrier, func(ctx context.Context, conn connection.Ledger) (bool, error) {
			return conn.AccountExists(ctx, ata)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to check token account %s: %w", ata, err)
		}
		if !exists {
			ixs = append(ixs, createATAInstruction(r.payer, ata, owner, mint))
		}
		destinations = append(destinations, ata)
	}

	amounts := []uint64{split.Merchant, split.Fee}
	for i, dest := range destinations {
		ix, err := token.NewTransferCheckedInstructionBuilder().
			SetAmount(amounts[i]).
			SetDecimals(decimals).
			SetSourceAccount(payerATA).
			SetMintAccount(mint).
			SetDestinationAccount(dest).
			SetOwnerAccount(r.payer).
			ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("failed to build transfer instruction: %w", err)
		}
		ixs = append(ixs, ix)
	}
	return ixs, nil
}

// createATAInstruction is the associated-token-account CreateIdempotent
// instruction (data [1]); the payer funds the rent.
func createATAInstruction(payer, ata, owner, mint solana.PublicKey) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
		{PublicKey: ata, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: false, IsWritable: false},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, accounts, []byte{1})
}

// memoInstruction tags the batch with the payment reference.
func memoInstruction(reference string) solana.Instruction {
	return solana.NewInstruction(MemoProgramID, solana.AccountMetaSlice{}, []byte(reference))
}

// priorityFeeInstruction sets the compute unit price, or returns nil when
// no priority fee is configured.
func priorityFeeInstruction(microLamports uint64) (solana.Instruction, error) {
	if microLamports == 0 {
		return nil, nil
	}
	ix, err := computebudget.NewSetComputeUnitPriceInstructionBuilder().
		SetMicroLamports(microLamports).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute price instruction: %w", err)
	}
	return ix, nil
}
