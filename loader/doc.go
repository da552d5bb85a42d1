// Package loader resolves named symbols for a plugin.
//
// Every plugin owns a Loader over its private CodeSource. Resolution tries,
// in order, the plugin's own code source, the host catalog, and then, once
// the loader has been bound to its registered plugin, the loader of every
// declared dependency in declaration order. LoadFromSelf restricts the
// lookup to the first tier and is used while a plugin is still being
// registered.
//
// Three kinds of code sources exist:
//
//   - Catalog: an in-process table of symbols registered at link time. The
//     host catalog (Host) is the application's own code path; named
//     catalogs registered with RegisterBundle are addressed as "bundle:<name>".
//   - Archive: a zip file on disk holding metadata documents and symbol
//     files compiled by extension through registered Compilers.
//   - nil: a global plugin, built into the host, whose own tier is the host
//     catalog.
package loader
