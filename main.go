package main

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"flag"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/archipelago/bft-consensus/consensus"
	"github.com/archipelago/bft-consensus/preconsensus"
	"github.com/archipelago/bft-consensus/utils"
)

func main() {
	silent := flag.Bool("silent", false, "Disable logs and print only result")
	rank0 := flag.Int64("rank0", 0, "Starting rank for every honest process")
	usePreconsensus := flag.Bool("preconsensus", false, "Run a frontier-union preconsensus pass before agreeing")
	flag.Parse()

	utils.SetupLogger()

	if *silent {
		zerolog.SetGlobalLevel(zerolog.Disabled)
	}

	var n, f int
	if _, err := fmt.Scan(&n, &f); err != nil {
		log.Fatal().Err(err).Msg("Failed to read N and F")
	}

	log.Info().Str("layer", "MAIN").Int("n", n).Int("f", f).Msg("Start Archipelago Simulation")

	honestCount := n - f
	inputs := make([]int64, honestCount)
	for i := 0; i < honestCount; i++ {
		if _, err := fmt.Scan(&inputs[i]); err != nil {
			log.Warn().Msgf("Input for node %d missing, defaulting to 0", i)
			inputs[i] = 0
		}
	}

	byzantine := make(map[consensus.ProcessID]bool, f)
	for i := honestCount; i < n; i++ {
		byzantine[consensus.ProcessID(i)] = true
	}

	procs := consensus.NewGroup(n, f, byzantine)
	threshold := 2*f + 1

	nodes := make([]*Node, honestCount)
	for i := 0; i < honestCount; i++ {
		nodes[i] = NewNode(procs[i])
	}

	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(honestCount)
	res := make([]int64, honestCount)

	for i := 0; i < honestCount; i++ {
		go func(idx int) {
			defer wg.Done()
			value0 := inputs[idx]
			if *usePreconsensus {
				value0 = preconsensusValue(nodes[idx].ID, f, inputs[idx])
			}
			nodes[idx].Start(ctx, threshold, value0, consensus.Rank(*rank0))
			res[idx] = <-nodes[idx].Result()
		}(i)
	}

	wg.Wait()
	consensus.StopAll(procs)

	if !*silent {
		log.Info().Msg("All honest nodes decided. Simulation finished.")
	}

	fmt.Print("RESULTS:")
	for i := 0; i < honestCount; i++ {
		fmt.Printf(" %d", res[i])
		if !*silent {
			log.Info().Int("node_id", int(nodes[i].ID)).Int64("result", res[i]).Msg("Node Decided")
		}
	}
	fmt.Println()
}

// preconsensusValue stands in for a full networked preconsensus round
// (§9): it builds id's own frontier set, attributes it to 2f+1 distinct
// synthetic senders so CollectPreProposal's per-sender dedup is satisfied,
// and folds the resulting Proposal's hash into the int64 space Propose
// expects. A true multi-party round would instead run one preconsensus.
// Broadcaster per process over its own channel set, exactly as consensus.
// NewGroup wires the agreement layer, and collect whatever each process's
// Broadcaster actually delivered — left as a follow-on wiring exercise
// since it does not change the agreement layer's semantics.
func preconsensusValue(id consensus.ProcessID, f int, seed int64) int64 {
	frontiers := make([]preconsensus.FrontierHash, preconsensus.FrontiersThreshold)
	for i := range frontiers {
		var buf [16]byte
		binary.LittleEndian.PutUint64(buf[:8], uint64(id))
		binary.LittleEndian.PutUint64(buf[8:], uint64(seed)+uint64(i))
		frontiers[i] = sha256.Sum256(buf[:])
	}

	threshold := 2*f + 1
	preproposals := make([]preconsensus.PreProposal, threshold)
	for i := 0; i < threshold; i++ {
		preproposals[i] = preconsensus.NewPreProposal(frontiers, consensus.ProcessID(i))
	}

	proposal, err := preconsensus.CollectPreProposal(preproposals, f, id)
	if err != nil {
		return seed
	}
	return int64(binary.LittleEndian.Uint64(proposal.Hash[:8]))
}
