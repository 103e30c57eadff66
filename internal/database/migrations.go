package database

const schema = `
CREATE TABLE IF NOT EXISTS scaling_groups (
    tenant_id TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    cooldown INTEGER NOT NULL DEFAULT 0,
    min_entities INTEGER NOT NULL DEFAULT 0,
    max_entities INTEGER NOT NULL DEFAULT 10,
    metadata TEXT NOT NULL DEFAULT '{}',
    launch_config TEXT NOT NULL DEFAULT '{}',
    desired_capacity INTEGER NOT NULL DEFAULT 0,
    paused INTEGER NOT NULL DEFAULT 0,
    created DATETIME NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS scaling_policies (
    group_id TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL DEFAULT 'webhook',
    cooldown INTEGER NOT NULL DEFAULT 0,
    change INTEGER,
    change_percent INTEGER,
    desired_capacity INTEGER,
    PRIMARY KEY (group_id, id)
);

CREATE TABLE IF NOT EXISTS webhooks (
    policy_id TEXT NOT NULL,
    id TEXT NOT NULL,
    group_id TEXT NOT NULL DEFAULT '',
    tenant_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    capability TEXT NOT NULL,
    PRIMARY KEY (policy_id, id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_webhooks_capability ON webhooks (capability);

CREATE TABLE IF NOT EXISTS servers (
    tenant_id TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    flavor_ref TEXT NOT NULL DEFAULT '',
    image_ref TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'BUILD',
    group_id TEXT NOT NULL DEFAULT '',
    created DATETIME NOT NULL,
    updated DATETIME NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_servers_group ON servers (tenant_id, group_id, status);

CREATE TABLE IF NOT EXISTS load_balancers (
    tenant_id TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    port INTEGER NOT NULL DEFAULT 80,
    protocol TEXT NOT NULL DEFAULT 'HTTP',
    status TEXT NOT NULL DEFAULT 'ACTIVE',
    created DATETIME NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS lb_nodes (
    lb_id TEXT NOT NULL,
    id TEXT NOT NULL,
    address TEXT NOT NULL,
    port INTEGER NOT NULL DEFAULT 80,
    condition TEXT NOT NULL DEFAULT 'ENABLED',
    PRIMARY KEY (lb_id, id)
);
`
