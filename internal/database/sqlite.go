package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leca/autoscale-bat/internal/model"
	_ "modernc.org/sqlite"
)

// SQLiteDB implements Database backed by SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) an SQLite database at dsn and runs migrations.
// For in-memory use pass "file::memory:?cache=shared".
func NewSQLiteDB(dsn string) (*SQLiteDB, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	} else if !strings.Contains(dsn, "_journal_mode") {
		dsn += "&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Scaling groups
// ---------------------------------------------------------------------------

func (s *SQLiteDB) CreateGroup(g *model.ScalingGroup) error {
	metaJSON, err := json.Marshal(g.GroupConfiguration.Metadata)
	if err != nil {
		return fmt.Errorf("marshal group metadata: %w", err)
	}
	launchJSON, err := json.Marshal(g.LaunchConfiguration)
	if err != nil {
		return fmt.Errorf("marshal launch config: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO scaling_groups
			(tenant_id, id, name, cooldown, min_entities, max_entities, metadata, launch_config, desired_capacity, paused, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.TenantID, g.ID, g.GroupConfiguration.Name, g.GroupConfiguration.Cooldown,
		g.GroupConfiguration.MinEntities, g.GroupConfiguration.MaxEntities,
		string(metaJSON), string(launchJSON), g.State.DesiredCapacity,
		boolToInt(g.State.Paused), g.Created.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert scaling group: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetGroup(tenantID, groupID string) (*model.ScalingGroup, error) {
	row := s.db.QueryRow(`
		SELECT tenant_id, id, name, cooldown, min_entities, max_entities, metadata, launch_config, desired_capacity, paused, created
		FROM scaling_groups WHERE tenant_id = ? AND id = ?`,
		tenantID, groupID,
	)
	return scanGroup(row)
}

func (s *SQLiteDB) ListGroups(tenantID string) ([]*model.ScalingGroup, error) {
	rows, err := s.db.Query(`
		SELECT tenant_id, id, name, cooldown, min_entities, max_entities, metadata, launch_config, desired_capacity, paused, created
		FROM scaling_groups WHERE tenant_id = ?
		ORDER BY created ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list scaling groups: %w", err)
	}
	defer rows.Close()

	var groups []*model.ScalingGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *SQLiteDB) UpdateGroupConfig(tenantID, groupID string, cfg model.GroupConfiguration) error {
	metaJSON, err := json.Marshal(cfg.Metadata)
	if err != nil {
		return fmt.Errorf("marshal group metadata: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE scaling_groups SET name = ?, cooldown = ?, min_entities = ?, max_entities = ?, metadata = ?
		WHERE tenant_id = ? AND id = ?`,
		cfg.Name, cfg.Cooldown, cfg.MinEntities, cfg.MaxEntities, string(metaJSON),
		tenantID, groupID,
	)
	if err != nil {
		return fmt.Errorf("update group config: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteDB) UpdateLaunchConfig(tenantID, groupID string, lc model.LaunchConfiguration) error {
	launchJSON, err := json.Marshal(lc)
	if err != nil {
		return fmt.Errorf("marshal launch config: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE scaling_groups SET launch_config = ?
		WHERE tenant_id = ? AND id = ?`,
		string(launchJSON), tenantID, groupID,
	)
	if err != nil {
		return fmt.Errorf("update launch config: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteDB) SetDesiredCapacity(tenantID, groupID string, desired int) error {
	res, err := s.db.Exec(`
		UPDATE scaling_groups SET desired_capacity = ?
		WHERE tenant_id = ? AND id = ?`,
		desired, tenantID, groupID,
	)
	if err != nil {
		return fmt.Errorf("set desired capacity: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteDB) SetGroupPaused(tenantID, groupID string, paused bool) error {
	res, err := s.db.Exec(`
		UPDATE scaling_groups SET paused = ?
		WHERE tenant_id = ? AND id = ?`,
		boolToInt(paused), tenantID, groupID,
	)
	if err != nil {
		return fmt.Errorf("set group paused: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteDB) DeleteGroup(tenantID, groupID string) error {
	res, err := s.db.Exec(`DELETE FROM scaling_groups WHERE tenant_id = ? AND id = ?`, tenantID, groupID)
	if err != nil {
		return fmt.Errorf("delete scaling group: %w", err)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	// Orphaned policies and webhooks go with the group.
	if _, err := s.db.Exec(`
		DELETE FROM webhooks WHERE policy_id IN (SELECT id FROM scaling_policies WHERE group_id = ?)`, groupID); err != nil {
		return fmt.Errorf("delete group webhooks: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM scaling_policies WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("delete group policies: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GroupCapacity(tenantID, groupID string) (int, int, error) {
	row := s.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'ACTIVE' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'BUILD' THEN 1 ELSE 0 END), 0)
		FROM servers WHERE tenant_id = ? AND group_id = ?`,
		tenantID, groupID,
	)
	var active, pending int
	if err := row.Scan(&active, &pending); err != nil {
		return 0, 0, fmt.Errorf("group capacity: %w", err)
	}
	return active, pending, nil
}

// ---------------------------------------------------------------------------
// Scaling policies
// ---------------------------------------------------------------------------

func (s *SQLiteDB) CreatePolicy(p *model.ScalingPolicy) error {
	_, err := s.db.Exec(`
		INSERT INTO scaling_policies (group_id, id, name, type, cooldown, change, change_percent, desired_capacity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.GroupID, p.ID, p.Name, p.Type, p.Cooldown,
		nullableInt(p.Change), nullableInt(p.ChangePercent), nullableInt(p.DesiredCapacity),
	)
	if err != nil {
		return fmt.Errorf("insert scaling policy: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetPolicy(groupID, policyID string) (*model.ScalingPolicy, error) {
	row := s.db.QueryRow(`
		SELECT group_id, id, name, type, cooldown, change, change_percent, desired_capacity
		FROM scaling_policies WHERE group_id = ? AND id = ?`,
		groupID, policyID,
	)
	return scanPolicy(row)
}

func (s *SQLiteDB) ListPolicies(groupID string) ([]*model.ScalingPolicy, error) {
	rows, err := s.db.Query(`
		SELECT group_id, id, name, type, cooldown, change, change_percent, desired_capacity
		FROM scaling_policies WHERE group_id = ?
		ORDER BY id ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list scaling policies: %w", err)
	}
	defer rows.Close()

	var policies []*model.ScalingPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (s *SQLiteDB) UpdatePolicy(p *model.ScalingPolicy) error {
	res, err := s.db.Exec(`
		UPDATE scaling_policies SET name = ?, type = ?, cooldown = ?, change = ?, change_percent = ?, desired_capacity = ?
		WHERE group_id = ? AND id = ?`,
		p.Name, p.Type, p.Cooldown,
		nullableInt(p.Change), nullableInt(p.ChangePercent), nullableInt(p.DesiredCapacity),
		p.GroupID, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update scaling policy: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteDB) DeletePolicy(groupID, policyID string) error {
	res, err := s.db.Exec(`DELETE FROM scaling_policies WHERE group_id = ? AND id = ?`, groupID, policyID)
	if err != nil {
		return fmt.Errorf("delete scaling policy: %w", err)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM webhooks WHERE policy_id = ?`, policyID); err != nil {
		return fmt.Errorf("delete policy webhooks: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Webhooks
// ---------------------------------------------------------------------------

func (s *SQLiteDB) CreateWebhook(wh *model.Webhook) error {
	_, err := s.db.Exec(`
		INSERT INTO webhooks (policy_id, id, group_id, tenant_id, name, capability)
		VALUES (?, ?, ?, ?, ?, ?)`,
		wh.PolicyID, wh.ID, wh.GroupID, wh.TenantID, wh.Name, wh.Capability,
	)
	if err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListWebhooks(policyID string) ([]*model.Webhook, error) {
	rows, err := s.db.Query(`
		SELECT policy_id, id, group_id, tenant_id, name, capability
		FROM webhooks WHERE policy_id = ?
		ORDER BY id ASC`,
		policyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []*model.Webhook
	for rows.Next() {
		wh := &model.Webhook{}
		if err := rows.Scan(&wh.PolicyID, &wh.ID, &wh.GroupID, &wh.TenantID, &wh.Name, &wh.Capability); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, wh)
	}
	return webhooks, rows.Err()
}

func (s *SQLiteDB) GetWebhookByCapability(capability string) (*model.Webhook, error) {
	row := s.db.QueryRow(`
		SELECT policy_id, id, group_id, tenant_id, name, capability
		FROM webhooks WHERE capability = ?`,
		capability,
	)
	wh := &model.Webhook{}
	err := row.Scan(&wh.PolicyID, &wh.ID, &wh.GroupID, &wh.TenantID, &wh.Name, &wh.Capability)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook by capability: %w", err)
	}
	return wh, nil
}

func (s *SQLiteDB) DeleteWebhook(policyID, webhookID string) error {
	res, err := s.db.Exec(`DELETE FROM webhooks WHERE policy_id = ? AND id = ?`, policyID, webhookID)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return checkRowsAffected(res)
}

// ---------------------------------------------------------------------------
// Servers
// ---------------------------------------------------------------------------

func (s *SQLiteDB) CreateServer(srv *model.Server) error {
	_, err := s.db.Exec(`
		INSERT INTO servers (tenant_id, id, name, flavor_ref, image_ref, status, group_id, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		srv.TenantID, srv.ID, srv.Name, srv.FlavorRef, srv.ImageRef, srv.Status, srv.GroupID,
		srv.Created.UTC().Format(time.RFC3339Nano), srv.Updated.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert server: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetServer(tenantID, serverID string) (*model.Server, error) {
	row := s.db.QueryRow(`
		SELECT tenant_id, id, name, flavor_ref, image_ref, status, group_id, created, updated
		FROM servers WHERE tenant_id = ? AND id = ?`,
		tenantID, serverID,
	)
	return scanServer(row)
}

func (s *SQLiteDB) ListServers(tenantID string) ([]*model.Server, error) {
	return s.queryServers(`
		SELECT tenant_id, id, name, flavor_ref, image_ref, status, group_id, created, updated
		FROM servers WHERE tenant_id = ? AND status != 'DELETED'
		ORDER BY created ASC`, tenantID)
}

func (s *SQLiteDB) ListGroupServers(tenantID, groupID string) ([]*model.Server, error) {
	return s.queryServers(`
		SELECT tenant_id, id, name, flavor_ref, image_ref, status, group_id, created, updated
		FROM servers WHERE tenant_id = ? AND group_id = ? AND status != 'DELETED'
		ORDER BY created ASC`, tenantID, groupID)
}

func (s *SQLiteDB) queryServers(query string, args ...interface{}) ([]*model.Server, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	var servers []*model.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

func (s *SQLiteDB) UpdateServerStatus(tenantID, serverID, status string) error {
	res, err := s.db.Exec(`
		UPDATE servers SET status = ?, updated = ?
		WHERE tenant_id = ? AND id = ?`,
		status, time.Now().UTC().Format(time.RFC3339Nano), tenantID, serverID,
	)
	if err != nil {
		return fmt.Errorf("update server status: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteDB) DeleteServer(tenantID, serverID string) error {
	res, err := s.db.Exec(`DELETE FROM servers WHERE tenant_id = ? AND id = ?`, tenantID, serverID)
	if err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteDB) ActivateServersBuiltBefore(cutoff time.Time) (int, error) {
	// RFC3339Nano strips trailing zeros, so the stored strings do not
	// sort lexicographically across fractional-second boundaries.
	// julianday gives a numeric comparison either way.
	res, err := s.db.Exec(`
		UPDATE servers SET status = 'ACTIVE', updated = ?
		WHERE status = 'BUILD' AND julianday(created) <= julianday(?)`,
		time.Now().UTC().Format(time.RFC3339Nano), cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("activate built servers: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ---------------------------------------------------------------------------
// Load balancers
// ---------------------------------------------------------------------------

func (s *SQLiteDB) CreateLoadBalancer(lb *model.LoadBalancer) error {
	_, err := s.db.Exec(`
		INSERT INTO load_balancers (tenant_id, id, name, port, protocol, status, created)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lb.TenantID, lb.ID, lb.Name, lb.Port, lb.Protocol, lb.Status,
		lb.Created.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert load balancer: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetLoadBalancer(tenantID, lbID string) (*model.LoadBalancer, error) {
	row := s.db.QueryRow(`
		SELECT tenant_id, id, name, port, protocol, status, created
		FROM load_balancers WHERE tenant_id = ? AND id = ?`,
		tenantID, lbID,
	)
	lb := &model.LoadBalancer{}
	var createdStr string
	err := row.Scan(&lb.TenantID, &lb.ID, &lb.Name, &lb.Port, &lb.Protocol, &lb.Status, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get load balancer: %w", err)
	}
	lb.Created, _ = time.Parse(time.RFC3339, createdStr)
	return lb, nil
}

func (s *SQLiteDB) ListLoadBalancers(tenantID string) ([]*model.LoadBalancer, error) {
	rows, err := s.db.Query(`
		SELECT tenant_id, id, name, port, protocol, status, created
		FROM load_balancers WHERE tenant_id = ?
		ORDER BY created ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list load balancers: %w", err)
	}
	defer rows.Close()

	var lbs []*model.LoadBalancer
	for rows.Next() {
		lb := &model.LoadBalancer{}
		var createdStr string
		if err := rows.Scan(&lb.TenantID, &lb.ID, &lb.Name, &lb.Port, &lb.Protocol, &lb.Status, &createdStr); err != nil {
			return nil, fmt.Errorf("scan load balancer: %w", err)
		}
		lb.Created, _ = time.Parse(time.RFC3339, createdStr)
		lbs = append(lbs, lb)
	}
	return lbs, rows.Err()
}

func (s *SQLiteDB) DeleteLoadBalancer(tenantID, lbID string) error {
	res, err := s.db.Exec(`DELETE FROM load_balancers WHERE tenant_id = ? AND id = ?`, tenantID, lbID)
	if err != nil {
		return fmt.Errorf("delete load balancer: %w", err)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM lb_nodes WHERE lb_id = ?`, lbID); err != nil {
		return fmt.Errorf("delete lb nodes: %w", err)
	}
	return nil
}

func (s *SQLiteDB) CreateNode(n *model.Node) error {
	_, err := s.db.Exec(`
		INSERT INTO lb_nodes (lb_id, id, address, port, condition)
		VALUES (?, ?, ?, ?, ?)`,
		n.LoadBalancerID, n.ID, n.Address, n.Port, n.Condition,
	)
	if err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListNodes(lbID string) ([]*model.Node, error) {
	rows, err := s.db.Query(`
		SELECT lb_id, id, address, port, condition
		FROM lb_nodes WHERE lb_id = ?
		ORDER BY id ASC`,
		lbID,
	)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*model.Node
	for rows.Next() {
		n := &model.Node{}
		if err := rows.Scan(&n.LoadBalancerID, &n.ID, &n.Address, &n.Port, &n.Condition); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *SQLiteDB) DeleteNode(lbID, nodeID string) error {
	res, err := s.db.Exec(`DELETE FROM lb_nodes WHERE lb_id = ? AND id = ?`, lbID, nodeID)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	return checkRowsAffected(res)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanGroup(row scannable) (*model.ScalingGroup, error) {
	g := &model.ScalingGroup{}
	var metaStr, launchStr, createdStr string
	var paused int

	err := row.Scan(&g.TenantID, &g.ID, &g.GroupConfiguration.Name, &g.GroupConfiguration.Cooldown,
		&g.GroupConfiguration.MinEntities, &g.GroupConfiguration.MaxEntities,
		&metaStr, &launchStr, &g.State.DesiredCapacity, &paused, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan scaling group: %w", err)
	}

	g.State.Paused = paused != 0
	g.Created, _ = time.Parse(time.RFC3339, createdStr)
	if metaStr != "" && metaStr != "{}" {
		if err := json.Unmarshal([]byte(metaStr), &g.GroupConfiguration.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal group metadata: %w", err)
		}
	}
	if launchStr != "" && launchStr != "{}" {
		if err := json.Unmarshal([]byte(launchStr), &g.LaunchConfiguration); err != nil {
			return nil, fmt.Errorf("unmarshal launch config: %w", err)
		}
	}
	return g, nil
}

func scanPolicy(row scannable) (*model.ScalingPolicy, error) {
	p := &model.ScalingPolicy{}
	var change, changePercent, desired sql.NullInt64

	err := row.Scan(&p.GroupID, &p.ID, &p.Name, &p.Type, &p.Cooldown, &change, &changePercent, &desired)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan scaling policy: %w", err)
	}

	p.Change = intPtr(change)
	p.ChangePercent = intPtr(changePercent)
	p.DesiredCapacity = intPtr(desired)
	return p, nil
}

func scanServer(row scannable) (*model.Server, error) {
	srv := &model.Server{}
	var createdStr, updatedStr string

	err := row.Scan(&srv.TenantID, &srv.ID, &srv.Name, &srv.FlavorRef, &srv.ImageRef,
		&srv.Status, &srv.GroupID, &createdStr, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan server: %w", err)
	}

	srv.Created, _ = time.Parse(time.RFC3339Nano, createdStr)
	srv.Updated, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return srv, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
