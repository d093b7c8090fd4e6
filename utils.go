package arksdk

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/ark-network/ark-client-go/client"
)

// inputsToDerivationPath derives a deterministic bip32 path from the set of
// settled inputs, so that re-joining a round with the same inputs yields
// the same ephemeral tree signer.
func inputsToDerivationPath(inputs []client.Outpoint, notesInputs []string) string {
	ids := make([]string, 0, len(inputs)+len(notesInputs))
	for _, input := range inputs {
		ids = append(ids, input.String())
	}
	ids = append(ids, notesInputs...)
	sort.Strings(ids)

	hash := sha256.Sum256([]byte(strings.Join(ids, ",")))

	parts := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		component := binary.BigEndian.Uint32(hash[i*4:(i+1)*4]) % 0x80000000
		parts = append(parts, fmt.Sprintf("%d'", component))
	}

	return "m/" + strings.Join(parts, "/")
}
