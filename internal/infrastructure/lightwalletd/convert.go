package lightwalletd

import (
	"fmt"

	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	"github.com/zcash/lightwalletd/walletrpc"
	"google.golang.org/protobuf/proto"
)

// toDomainBlock keeps the sapling parts of the served block the scanner
// works with. The full message, orchard actions and chain metadata
// included, is kept serialized in the Raw field.
func toDomainBlock(pb *walletrpc.CompactBlock) (domain.CompactBlock, error) {
	raw, err := proto.Marshal(pb)
	if err != nil {
		return domain.CompactBlock{}, fmt.Errorf(
			"serializing block %d: %w", pb.GetHeight(), err,
		)
	}

	block := domain.CompactBlock{
		ProtoVersion: pb.GetProtoVersion(),
		Height:       pb.GetHeight(),
		Hash:         pb.GetHash(),
		PrevHash:     pb.GetPrevHash(),
		Time:         pb.GetTime(),
		Header:       pb.GetHeader(),
		Raw:          raw,
	}
	if len(pb.GetVtx()) > 0 {
		block.Vtx = make([]domain.CompactTx, 0, len(pb.GetVtx()))
	}
	for _, tx := range pb.GetVtx() {
		block.Vtx = append(block.Vtx, toDomainTx(tx))
	}
	return block, nil
}

func toDomainTx(pb *walletrpc.CompactTx) domain.CompactTx {
	tx := domain.CompactTx{
		Index: pb.GetIndex(),
		Hash:  pb.GetHash(),
		Fee:   pb.GetFee(),
	}
	for _, s := range pb.GetSpends() {
		tx.Spends = append(tx.Spends, domain.CompactSpend{Nf: s.GetNf()})
	}
	for _, o := range pb.GetOutputs() {
		tx.Outputs = append(tx.Outputs, domain.CompactOutput{
			Cmu:          o.GetCmu(),
			EphemeralKey: o.GetEphemeralKey(),
			Ciphertext:   o.GetCiphertext(),
		})
	}
	return tx
}
