package sqlstore

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  password_hash TEXT,
  email TEXT UNIQUE,
  phone TEXT UNIQUE,
  wechat_openid TEXT UNIQUE,
  alipay_user_id TEXT UNIQUE,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS social_links (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  platform TEXT NOT NULL,
  provider_user_id TEXT NOT NULL,
  union_id TEXT,
  created_at INTEGER NOT NULL,
  UNIQUE (platform, provider_user_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_social_links_user ON social_links(user_id)`,
	`CREATE TABLE IF NOT EXISTS login_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL DEFAULT 0,
  username TEXT,
  login_type TEXT NOT NULL,
  ip TEXT,
  user_agent TEXT,
  success INTEGER NOT NULL,
  fail_reason TEXT,
  created_at INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_login_logs_user ON login_logs(user_id, created_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  password_hash TEXT,
  email TEXT,
  phone TEXT,
  wechat_openid TEXT,
  alipay_user_id TEXT,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  CONSTRAINT users_name_key UNIQUE (name),
  CONSTRAINT users_email_key UNIQUE (email),
  CONSTRAINT users_phone_key UNIQUE (phone),
  CONSTRAINT users_wechat_openid_key UNIQUE (wechat_openid),
  CONSTRAINT users_alipay_user_id_key UNIQUE (alipay_user_id)
)`,
	`CREATE TABLE IF NOT EXISTS social_links (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  platform TEXT NOT NULL,
  provider_user_id TEXT NOT NULL,
  union_id TEXT,
  created_at BIGINT NOT NULL,
  CONSTRAINT social_links_provider_key UNIQUE (platform, provider_user_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_social_links_user ON social_links(user_id)`,
	`CREATE TABLE IF NOT EXISTS login_logs (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL DEFAULT 0,
  username TEXT,
  login_type TEXT NOT NULL,
  ip TEXT,
  user_agent TEXT,
  success BOOLEAN NOT NULL,
  fail_reason TEXT,
  created_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_login_logs_user ON login_logs(user_id, created_at)`,
}
