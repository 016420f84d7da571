package ethereum

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.vocdoni.io/proto/build/go/models"
	"google.golang.org/protobuf/proto"
)

const (
	voteTemplate             = "Signing a Vocdoni transaction of type VOTE for process ID %x. The hash of the transaction is %x and the destination chainID is %s."
	newProcessTemplate       = "Signing a Vocdoni transaction of type NEW_PROCESS. The hash of the transaction is %x and the destination chainID is %s."
	setProcessStatusTemplate = "Signing a Vocdoni transaction of type SET_PROCESS_STATUS for process ID %x and status %s. The hash of the transaction is %x and the destination chainID is %s."

	defaultTemplate = "Vocdoni signed transaction:\n%s\n%x"
)

// BuildVocdoniProtoTxMessage builds the message to be signed for a vocdoni transaction.
// It takes an optional transaction hash, if it is not provided it will be computed.
func BuildVocdoniProtoTxMessage(tx *models.Tx, chainID string, hash []byte) ([]byte, error) {
	if hash == nil {
		marshaledTx, err := proto.Marshal(tx)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal Tx: %v", err)
		}
		hash = HashRaw(marshaledTx)
	}

	var msg string
	switch tx.Payload.(type) {
	case *models.Tx_Vote:
		t := tx.GetVote()
		if t == nil {
			return nil, fmt.Errorf("vote payload is nil")
		}
		msg = fmt.Sprintf(voteTemplate, t.ProcessId, hash, chainID)
	case *models.Tx_NewProcess:
		if tx.GetNewProcess().GetProcess() == nil {
			return nil, fmt.Errorf("new process payload is nil")
		}
		msg = fmt.Sprintf(newProcessTemplate, hash, chainID)
	case *models.Tx_SetProcess:
		t := tx.GetSetProcess()
		if t == nil {
			return nil, fmt.Errorf("set process payload is nil")
		}
		msg = fmt.Sprintf(setProcessStatusTemplate, t.ProcessId, strings.ToLower(t.GetStatus().String()), hash, chainID)
	default:
		msg = fmt.Sprintf(defaultTemplate, chainID, hash)
	}
	return []byte(msg), nil
}

// BuildVocdoniTransaction builds the payload for a Vocdoni transaction.
// It returns the payload that needs to be signed and the unmarshaled transaction struct.
func BuildVocdoniTransaction(marshaledTx []byte, chainID string) ([]byte, *models.Tx, error) {
	var tx models.Tx
	if err := proto.Unmarshal(marshaledTx, &tx); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal Tx: %v", err)
	}
	message, err := BuildVocdoniProtoTxMessage(&tx, chainID, HashRaw(marshaledTx))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build transaction message: %v", err)
	}
	return message, &tx, nil
}

// SignVocdoniTx signs a vocdoni transaction. TxData is the full transaction payload (no HexString nor a Hash)
func (k *SignKeys) SignVocdoniTx(txData []byte, chainID string) ([]byte, error) {
	if k.Private.D == nil {
		return nil, errors.New("no private key available")
	}
	payloadToSign, _, err := BuildVocdoniTransaction(txData, chainID)
	if err != nil {
		return nil, err
	}
	return ethcrypto.Sign(Hash(payloadToSign), &k.Private)
}

// TxSigner recovers the public key and the address that signed a vocdoni
// transaction, along with the decoded transaction.
func TxSigner(txData, signature []byte, chainID string) (*ecdsa.PublicKey, ethcommon.Address, *models.Tx, error) {
	payload, tx, err := BuildVocdoniTransaction(txData, chainID)
	if err != nil {
		return nil, ethcommon.Address{}, nil, err
	}
	pub, err := recoverPubKey(Hash(payload), signature)
	if err != nil {
		return nil, ethcommon.Address{}, nil, err
	}
	return pub, ethcrypto.PubkeyToAddress(*pub), tx, nil
}
