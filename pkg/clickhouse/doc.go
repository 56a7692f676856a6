// Package clickhouse implements connector.Session for ClickHouse.
//
// Tables, views and dictionaries are read from system.tables, using
// create_table_query as the body and metadata_modification_time as the
// last-modified time. SQL user-defined functions come from system.functions.
// System databases are never reported.
//
// ClickHouse identifiers are case-sensitive, so every definition carries its
// backtick-quoted name and generated statements use it:
//
//	ALTER TABLE `analytics`.`events` ADD COLUMN `name` String
//
// Connections accept a host:port address or a clickhouse:// URL. URL
// parameters cert_file, key_file and ca_file configure mTLS.
package clickhouse
