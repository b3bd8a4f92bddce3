// Package pupman audits the user/group ID remapping configuration that
// backs unprivileged Proxmox LXC containers.
//
// # What it checks
//
// Unprivileged containers rely on three sources of truth staying in
// agreement: the host's sub-ID grants in /etc/subuid and /etc/subgid, the
// per-container lxc.idmap directives in each <ctid>.conf, and the on-disk
// ownership of every container's root filesystem. pupman cross-references
// all three and reports findings for the configurations that would break
// container isolation:
//   - duplicate sub-ID grants for the same host user or group
//   - lxc.idmap ranges that fall outside the host's granted sub-ID range
//   - unprivileged containers missing a uid or gid idmap entirely
//   - root filesystems owned by a uid/gid other than the mapped one
//
// # Architecture
//
// pupman consists of five integrated subsystems:
//  1. **Config store**: a lossless, section-indexed parser for the
//     Proxmox LXC configuration dialect with O(1) keyed lookups
//  2. **Monitor**: an fsnotify-backed watcher for the host sub-ID files
//     and the container config directory, paired with a low-frequency
//     poller that tracks root-filesystem ownership (inotify cannot
//     observe chown)
//  3. **Reader**: a dedicated worker turning change notifications into
//     parsed, validated in-memory state
//  4. **Evaluator**: recomputes the full finding set from scratch on
//     every state transition, with memoized name-to-ID resolution
//  5. **Audit trail**: pipeline event logging with SQLite backend
//
// # Quick start
//
//	app, err := pupman.NewApp(pupman.Config{LXCConfigDir: "/etc/pve/lxc"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	app.OnChange(func(s pupman.Snapshot) {
//		for _, f := range s.Findings {
//			fmt.Println(f.Kind, f.Message)
//		}
//	})
//	if err := app.Run(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// All state is owned by the single goroutine running the event loop;
// every other component communicates with it exclusively through
// channels. Findings are ephemeral: they are rebuilt on every relevant
// filesystem change and never persisted.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package pupman
