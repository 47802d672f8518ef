package memory

// Token estimation is deliberately a character heuristic: the service
// talks to several providers with different tokenizers, and the budget
// only has to be safe, not exact.
const (
	charsPerToken = 4

	// blockOverheadTokens accounts for the role/formatting framing each
	// block picks up when it is rendered into the prompt.
	blockOverheadTokens = 3
)

// Block is an atomic prompt candidate. Blocks are included whole or
// not at all.
type Block struct {
	// Key identifies the block to the caller (turn index, memory ID).
	Key string

	// Text is the block content.
	Text string
}

// Budgeter estimates token counts and fits atomic blocks into a budget.
type Budgeter struct{}

// NewBudgeter creates a Budgeter.
func NewBudgeter() *Budgeter {
	return &Budgeter{}
}

// Estimate returns the estimated token count for text: ceil(len/4).
func (b *Budgeter) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Cost returns the budget charge for including text as one block.
func (b *Budgeter) Cost(text string) int {
	return b.Estimate(text) + blockOverheadTokens
}

// Fit selects blocks in the given priority order until the next block
// would exceed the budget, then stops. A lower-priority block is never
// included once a higher-priority one was rejected; blocks are never
// split. The returned slice preserves the input order.
func (b *Budgeter) Fit(blocks []Block, budget int) []Block {
	remaining := budget
	kept := make([]Block, 0, len(blocks))
	for _, blk := range blocks {
		cost := b.Cost(blk.Text)
		if cost > remaining {
			break
		}
		remaining -= cost
		kept = append(kept, blk)
	}
	return kept
}
