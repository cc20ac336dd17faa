package verification

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const verifierABIJSON = `[
  {"type":"function","name":"verify","stateMutability":"view",
   "inputs":[{"name":"_proof","type":"bytes"},{"name":"_publicInputs","type":"bytes32[]"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"error","name":"ProofLengthWrong","inputs":[]},
  {"type":"error","name":"PublicInputsLengthWrong","inputs":[]},
  {"type":"error","name":"SumcheckFailed","inputs":[]},
  {"type":"error","name":"ShpleminiFailed","inputs":[]},
  {"type":"error","name":"ConsistencyCheckFailed","inputs":[]},
  {"type":"error","name":"GeminiChallengeInSubgroup","inputs":[]}
]`

const proofManagerABIJSON = `[
  {"type":"function","name":"verifyZkJwtProof","stateMutability":"view",
   "inputs":[{"name":"proof","type":"bytes"},{"name":"publicInputs","type":"bytes32[]"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"recordPublicInputsOfZkJwtProof","stateMutability":"nonpayable",
   "inputs":[
     {"name":"proof","type":"bytes"},
     {"name":"publicInputs","type":"bytes32[]"},
     {"name":"publicInputsOfZkJwtProof","type":"tuple","components":[{"name":"values","type":"bytes32[]"}]}
   ],
   "outputs":[]}
]`

const (
	verifyMethod           = "verify"
	verifyZkJwtProofMethod = "verifyZkJwtProof"
	recordMethod           = "recordPublicInputsOfZkJwtProof"
)

// VerifierABI is the interface of the generated proof verifier contract,
// including its custom errors.
var VerifierABI = mustParseABI(verifierABIJSON)

// ProofManagerABI is the interface of the contract that verifies proofs and
// records their public inputs.
var ProofManagerABI = mustParseABI(proofManagerABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// publicInputsOfZkJwtProof is the tuple argument of recordMethod.
type publicInputsOfZkJwtProof struct {
	Values [][32]byte
}
