// Package hooks runs operator-supplied SQL scripts around deployment stages.
//
// Hooks are configured per plan, loaded from YAML (or JSON) files such as:
//
//	pre_apply:
//	  - INSERT INTO ops.audit (plan, event) VALUES ('{{ plan }}', 'apply started')
//	post_apply:
//	  - BEGIN ops.refresh_grants; END;
//
// Each script is rendered by replacing {{ plan }} with the plan name and then
// executed as a single statement against the target connection.
package hooks
