package counterparties

import (
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// foldForQuery folds a search term the way search_name is stored and escapes
// LIKE metacharacters.
func foldForQuery(s string) string {
	return likeEscaper.Replace(shared.FoldSearch(s))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
