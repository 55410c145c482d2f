package main

import (
	"context"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zinrai/srv6-tinet/internal/addr"
	"github.com/zinrai/srv6-tinet/internal/daemoncfg"
	"github.com/zinrai/srv6-tinet/internal/export"
	"github.com/zinrai/srv6-tinet/internal/graphdb"
	"github.com/zinrai/srv6-tinet/internal/routing"
	"github.com/zinrai/srv6-tinet/internal/topology"
)

const neo4jTimeout = 30 * time.Second

func newBuildCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Write the deployment directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.build(cmd.Context())
		},
	}
}

func newRoutesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the computed routes without writing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, res, err := a.plan()
			if err != nil {
				return err
			}
			printRoutes(cmd.OutOrStdout(), res.Routes)
			return nil
		},
	}
}

// plan builds the topology and computes its routes. Unreachable pairs are
// logged and do not fail the run.
func (a *app) plan() (*topology.Graph, *routing.Result, error) {
	in, err := topology.LoadInput(a.cfg.Topology)
	if err != nil {
		return nil, nil, err
	}
	pools, err := addr.NewPools(a.cfg.Plan())
	if err != nil {
		return nil, nil, err
	}
	g, err := topology.NewBuilder(pools, a.log).Build(in)
	if err != nil {
		return nil, nil, err
	}
	res := routing.NewPlanner(a.log).Plan(g)
	if len(res.Unreachable) > 0 {
		a.log.Warn("Some subnets are unreachable", zap.Int("pairs", len(res.Unreachable)))
	}
	return g, res, nil
}

func (a *app) build(ctx context.Context) error {
	g, res, err := a.plan()
	if err != nil {
		return err
	}

	var templates *daemoncfg.Templates
	if a.cfg.Templates != "" {
		if templates, err = daemoncfg.LoadTemplates(a.cfg.Templates); err != nil {
			return err
		}
	}

	d, err := export.Render(g, res, export.Options{
		Image:     a.cfg.Image,
		Templates: templates,
		AreaRange: a.cfg.AreaRange(),
	})
	if err != nil {
		return err
	}
	if err := d.Write(a.cfg.Output); err != nil {
		return err
	}
	a.log.Info("Deployment written",
		zap.String("dir", a.cfg.Output),
		zap.Int("files", len(d.Files())),
		zap.Int("routers", len(res.Routes)))

	if a.cfg.Neo4jURI == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, neo4jTimeout)
	defer cancel()
	sink, err := graphdb.Open(ctx, a.cfg.Neo4jURI, a.cfg.Neo4jUser, a.cfg.Neo4jPassword, a.cfg.Neo4jDatabase, a.log)
	if err != nil {
		return err
	}
	defer sink.Close(ctx)
	return sink.Store(ctx, d.Model)
}

func printRoutes(w io.Writer, routes routing.Table) {
	var rows [][]string
	for _, router := range routes.Routers() {
		for _, r := range routes[router] {
			rows = append(rows, []string{router, r.Subnet.String(), r.Gateway.String(), r.Device})
		}
	}
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"ROUTER", "SUBNET", "GATEWAY", "DEVICE"})
	table.AppendBulk(rows)
	table.Render()
}
