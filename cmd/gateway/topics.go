package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/config"
)

// topicsCreateCmd is a one-shot topic-administration utility: a thin wrapper
// around franz-go's admin client (kadm) rather than a general-purpose topic
// manager.
var topicsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create every topic the gateway publishes to",
	RunE:  runTopicsCreate,
}

func init() {
	rootCmd.AddCommand(topicsCmd)
	topicsCmd.AddCommand(topicsCreateCmd)
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Manage bus topics",
}

// regionTopicGroup is one region's streaming/consolidated topic names, sized
// to that region's own partition count rather than one flat count shared
// across regions.
type regionTopicGroup struct {
	partitions int32
	topics     []string
}

func runTopicsCreate(cmd *cobra.Command, args []string) error {
	busCfg, err := config.LoadBus(flagConfigDir)
	if err != nil {
		return err
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(busCfg.BootstrapServers...))
	if err != nil {
		return fmt.Errorf("topics create: connect: %w", err)
	}
	defer client.Close()

	admin := kadm.NewClient(client)
	ctx := context.Background()

	groups := gatewayTopicGroups(busCfg)
	for _, g := range groups {
		if len(g.topics) == 0 {
			continue
		}
		resp, err := admin.CreateTopics(ctx, g.partitions, 1, nil, g.topics...)
		if err != nil {
			return fmt.Errorf("topics create: %w", err)
		}
		for _, t := range resp.Sorted() {
			if t.Err != nil {
				fmt.Printf("%-40s FAILED: %v\n", t.Topic, t.Err)
				continue
			}
			fmt.Printf("%-40s created (%d partitions)\n", t.Topic, g.partitions)
		}
	}
	return nil
}

// gatewayTopicGroups enumerates every topic the gateway publishes to, grouped
// by the partition count its owning region provisions. The consolidated REST
// topic is named for symbol BTC only (the `run --symbol` default); topics
// for other symbols are not created here. Ticker/orderbook and
// the consolidated REST topic all take that region's regionSpec partition
// count, and the single cross-region error topic takes the widest region's
// count (Korea's 8) since every region publishes to it.
func gatewayTopicGroups(busCfg config.BusConfig) []regionTopicGroup {
	regionRoots := map[string]string{
		"korea": busCfg.KoreaTopicRoot,
		"asia":  busCfg.AsiaTopicRoot,
		"ne":    busCfg.NETopicRoot,
	}
	displays := map[string]string{"korea": "Korea", "asia": "Asia", "ne": "NE"}

	groups := []regionTopicGroup{{partitions: int32(len(regionSpecs["korea"].partitions)), topics: []string{"ErrorTopic"}}}
	for name, root := range regionRoots {
		if root == "" {
			continue
		}
		spec, ok := regionSpecs[name]
		if !ok {
			continue
		}
		groups = append(groups, regionTopicGroup{
			partitions: int32(len(spec.partitions)),
			topics: []string{
				root + "-ticker",
				root + "-orderbook",
				fmt.Sprintf("Total%sRestDataInBTC", displays[name]),
			},
		})
	}
	return groups
}
