package block

// YieldInterval is the number of nonce attempts between cooperative checks
// of the cancellation channel (§4.1, §5, §9 "cooperative mining").
const YieldInterval = 1000

// Mine increments b.Nonce from zero, recomputing b.Hash at each step,
// until the hash satisfies b.Difficulty leading hex zeros. Every
// YieldInterval attempts it checks cancel; if cancel is closed before a
// valid nonce is found, Mine returns (false, nil) and leaves b unmodified
// beyond the nonce attempts already tried. The caller MUST discard b on a
// cancelled mine.
func Mine(b *Block, cancel <-chan struct{}) (bool, error) {
	b.Nonce = 0
	for {
		for i := 0; i < YieldInterval; i++ {
			hash, err := b.ComputeHash()
			if err != nil {
				return false, err
			}
			if HasDifficultyPrefix(hash, b.Difficulty) {
				b.Hash = hash
				return true, nil
			}
			b.Nonce++
		}
		select {
		case <-cancel:
			return false, nil
		default:
		}
	}
}
