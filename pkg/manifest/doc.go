// Package manifest resolves change log manifests into ordered file lists.
//
// A manifest is a small XML document whose root element holds ordered
// <include> entries:
//
//	<databaseChangeLog>
//	  <include file="tables/001_create_events.sql"/>
//	  <include file="tables/002_add_session_id.sql"/>
//	</databaseChangeLog>
//
// The master change log lists change log files the same way, and may pull in
// other master-level manifests with a manifest attribute. Those are expanded
// in place and cycles are rejected:
//
//	<databaseChangeLog>
//	  <include file="release-1.xml"/>
//	  <include manifest="team-a/master.xml"/>
//	</databaseChangeLog>
//
// Declaration order is deployment order, so every result preserves it.
//
// All reads go through a billy.Filesystem rooted at the project directory,
// which lets tests run against memfs.
package manifest
