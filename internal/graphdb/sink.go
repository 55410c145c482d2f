// Package graphdb stores an exported topology and its routes in Neo4j.
package graphdb

import (
	"context"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zinrai/srv6-tinet/internal/export"
)

// DefaultDatabase is used when no database name is configured.
const DefaultDatabase = "neo4j"

// Statement is one parameterized Cypher query.
type Statement struct {
	Query  string
	Params map[string]any
}

// Sink writes models into one Neo4j database.
type Sink struct {
	driver   neo4j.DriverWithContext
	database string
	log      *zap.Logger
}

// Open connects to the database at uri. An empty user selects no
// authentication.
func Open(ctx context.Context, uri, user, password, database string, log *zap.Logger) (*Sink, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if database == "" {
		database = DefaultDatabase
	}
	auth := neo4j.NoAuth()
	if user != "" {
		auth = neo4j.BasicAuth(user, password, "")
	}
	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, errors.Wrapf(err, "neo4j %s", uri)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, errors.Wrapf(err, "neo4j %s", uri)
	}
	return &Sink{driver: driver, database: database, log: log}, nil
}

// Store replaces the contents of the database with m.
func (s *Sink) Store(ctx context.Context, m *export.Model) error {
	for _, st := range Statements(m) {
		_, err := neo4j.ExecuteQuery(ctx, s.driver, st.Query, st.Params,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(s.database))
		if err != nil {
			return errors.Wrap(err, "neo4j store")
		}
	}
	s.log.Info("Stored topology in neo4j",
		zap.String("database", s.database),
		zap.Int("nodes", len(m.Topology.Nodes)),
		zap.Int("links", len(m.Topology.Links)))
	return nil
}

// Close closes the driver.
func (s *Sink) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Statements returns the queries storing m, in execution order.
func Statements(m *export.Model) []Statement {
	nodes := make([]any, 0, len(m.Topology.Nodes))
	for _, n := range m.Topology.Nodes {
		nodes = append(nodes, map[string]any{
			"id":         n.ID,
			"type":       n.Type,
			"mgmtip":     n.MgmtIP,
			"group":      n.Group,
			"loopbackip": n.LoopbackIP,
			"routerid":   n.RouterID,
			"vnfs":       append([]string{}, m.VNFs[n.ID]...),
		})
	}

	links := make([]any, 0, len(m.Topology.Links))
	for _, l := range m.Topology.Links {
		links = append(links, map[string]any{
			"source":   l.Source,
			"target":   l.Target,
			"lhs_intf": l.LhsIntf,
			"rhs_intf": l.RhsIntf,
			"lhs_ip":   l.LhsIP,
			"rhs_ip":   l.RhsIP,
			"subnet":   l.Subnet,
			"kind":     l.Kind,
			"bw":       l.Bw,
			"delay":    l.Delay,
		})
	}

	routers := make([]string, 0, len(m.Routing))
	for id := range m.Routing {
		routers = append(routers, id)
	}
	sort.Strings(routers)
	routes := []any{}
	for _, router := range routers {
		for _, r := range m.Routing[router] {
			routes = append(routes, map[string]any{
				"router":  router,
				"subnet":  r.Subnet,
				"gateway": r.Gateway,
				"device":  r.Device,
			})
		}
	}

	return []Statement{
		{Query: `MATCH (n) DETACH DELETE n`, Params: map[string]any{}},
		{
			Query: `CREATE CONSTRAINT uniq_node_id IF NOT EXISTS
		FOR (n:Node)
		REQUIRE n.id IS UNIQUE`,
			Params: map[string]any{},
		},
		{
			Query: `UNWIND $nodes AS n
		CREATE (:Node {id: n.id, type: n.type, mgmtip: n.mgmtip, group: n.group,
			loopbackip: n.loopbackip, routerid: n.routerid, vnfs: n.vnfs})`,
			Params: map[string]any{"nodes": nodes},
		},
		{
			Query: `UNWIND $links AS l
		MATCH (a:Node {id: l.source}), (b:Node {id: l.target})
		CREATE (a)-[:LINK {lhs_intf: l.lhs_intf, rhs_intf: l.rhs_intf, lhs_ip: l.lhs_ip,
			rhs_ip: l.rhs_ip, subnet: l.subnet, kind: l.kind, bw: l.bw, delay: l.delay}]->(b)`,
			Params: map[string]any{"links": links},
		},
		{
			Query: `UNWIND $routes AS r
		MATCH (n:Node {id: r.router})
		MERGE (s:Subnet {prefix: r.subnet})
		CREATE (n)-[:ROUTE {gateway: r.gateway, device: r.device}]->(s)`,
			Params: map[string]any{"routes": routes},
		},
	}
}
