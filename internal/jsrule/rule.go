// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

// Package jsrule rewrites the launcher's bundled main.js so games installed
// under a local root directory are owned, detected and started directly.
package jsrule

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/woozymasta/asarpatch/internal/logging"
)

const (
	// Marker is prepended to a rewritten script.
	Marker = "/*asarpatch:games-root*/"
	// DefaultGamesRoot is resolved by the launcher relative to its working directory.
	DefaultGamesRoot = "./games"
	// SteamAppID is the launcher's Steam application id.
	SteamAppID = 2828500
)

// Fragment names reported with ErrPatternNotFound.
const (
	FragmentRequires     = "requires"
	FragmentEntitlements = "entitlements"
	FragmentInstalled    = "installed"
	FragmentLaunch       = "launch"
)

var (
	requiresRe = regexp.MustCompile(
		`(?ms)(\w+?)\s*?=\s*?require\("(node:path|node:fs|child_process)"\)`)
	entitlementsRe = regexp.MustCompile(
		`(?ms)if\s*?\(!(\w+?)\.entitlements\s*?\|\|\s*?!(\w+?)\.products\s*?\|\|\s*?!(\w+?)\.storage\)\s*?return\s*?null;.*?const.*?];`)
	installedRe = regexp.MustCompile(
		`(?m)\[(\w+)\.steamId\]\s*?=\s*?\{\s*?isInstalled:\s*?(\w+?),\s*?installDir:\s*?(\w+?)\s*?\}`)
	launchRe = regexp.MustCompile(
		`(?ms)(\w+)\s*?=\s*?` + "`" + `steam://run/\$\{(\w+)\.data\.steamId\}// -launchTo \$\{(\w+)\} -jbg\.config isBundle=false` + "`" +
			`;(.*?)(if\s*?\(await\s*?(\w+)\.)(.+?)!(\w+)\.user(.+?);`)
)

// Rule is the games-root rewrite of the launcher script.
type Rule struct {
	// Logger receives per-fragment debug entries; nil discards.
	Logger logrus.FieldLogger
	// GamesRoot holds one directory per Steam app id; default "./games".
	GamesRoot string
}

// modules are the minified identifiers bound to required node modules.
type modules struct {
	path  string
	fs    string
	child string
}

// Apply returns the rewritten script. A script carrying Marker is returned
// unchanged with ErrAlreadyPatched. When a fragment is missing the error wraps
// ErrPatternNotFound and names the fragment.
func (r Rule) Apply(src string) (string, error) {
	if strings.Contains(src, Marker) {
		return src, ErrAlreadyPatched
	}

	log := logging.OrDiscard(r.Logger)
	root, err := jsString(r.root())
	if err != nil {
		return "", err
	}

	mods, err := resolveModules(src)
	if err != nil {
		return "", err
	}
	log.WithFields(logrus.Fields{"path": mods.path, "fs": mods.fs, "child_process": mods.child}).Debug("resolved requires")

	out, err := patchEntitlements(src, mods, root)
	if err != nil {
		return "", err
	}
	log.Debug("patched entitlements")

	out, err = patchInstalled(out, mods, root)
	if err != nil {
		return "", err
	}
	log.Debug("patched installation check")

	out, err = patchLaunch(out, mods, root)
	if err != nil {
		return "", err
	}
	log.Debug("patched launch")

	return Marker + out, nil
}

// root returns configured games root or the default.
func (r Rule) root() string {
	if strings.TrimSpace(r.GamesRoot) == "" {
		return DefaultGamesRoot
	}

	return r.GamesRoot
}

// jsString encodes s as a JavaScript string literal.
func jsString(s string) (string, error) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("encode games root: %w", err)
	}

	return strings.TrimSuffix(sb.String(), "\n"), nil
}

// missing wraps ErrPatternNotFound with fragment name.
func missing(fragment string) error {
	return fmt.Errorf("%w: %s", ErrPatternNotFound, fragment)
}

// resolveModules finds identifiers bound to node:path, node:fs and child_process.
func resolveModules(src string) (modules, error) {
	var m modules
	for _, sub := range requiresRe.FindAllStringSubmatch(src, -1) {
		switch sub[2] {
		case "node:path":
			if m.path == "" {
				m.path = sub[1]
			}
		case "node:fs":
			if m.fs == "" {
				m.fs = sub[1]
			}
		case "child_process":
			if m.child == "" {
				m.child = sub[1]
			}
		}
	}

	if m.path == "" || m.fs == "" || m.child == "" {
		return m, missing(FragmentRequires)
	}

	return m, nil
}

// gameDir returns a JS expression joining the root with a steam id expression.
func gameDir(mods modules, root, steamID string) string {
	return mods.path + ".join(" + root + ",String(" + steamID + "))"
}

// patchEntitlements appends owned products whose game directory exists.
func patchEntitlements(src string, mods modules, root string) (string, error) {
	loc := entitlementsRe.FindStringSubmatchIndex(src)
	if loc == nil {
		return "", missing(FragmentEntitlements)
	}

	arg := src[loc[2]:loc[3]]
	insert := "for(const p of " + arg + ".products){if(" + mods.fs + ".existsSync(" + gameDir(mods, root, "p.steamId") +
		")){" + arg + ".entitlements.appsOwned.push(p.steamId)}}"

	return src[:loc[1]] + insert + src[loc[1]:], nil
}

// patchInstalled ORs the installed flag with a game directory check.
func patchInstalled(src string, mods modules, root string) (string, error) {
	loc := installedRe.FindStringSubmatchIndex(src)
	if loc == nil {
		return "", missing(FragmentInstalled)
	}

	product := src[loc[2]:loc[3]]
	at := loc[5]
	insert := "||" + mods.fs + ".existsSync(" + gameDir(mods, root, product+".steamId") + ")"

	return src[:at] + insert + src[at:], nil
}

// patchLaunch replaces the launch branch with a direct executable start that
// falls back to the steam:// URL.
func patchLaunch(src string, mods modules, root string) (string, error) {
	loc := launchRe.FindStringSubmatchIndex(src)
	if loc == nil {
		return "", missing(FragmentLaunch)
	}

	group := func(n int) string { return src[loc[2*n]:loc[2*n+1]] }
	url, app, target, shell, user := group(1), group(2), group(3), group(6), group(8)
	dir := gameDir(mods, root, app+".data.steamId")

	block := strings.NewReplacer(
		"$URL", url,
		"$APP", app,
		"$TARGET", target,
		"$SHELL", shell,
		"$USER", user,
		"$DIR", dir,
		"$PATH", mods.path,
		"$FS", mods.fs,
		"$CHILD", mods.child,
	).Replace(launchBlock)

	return src[:loc[10]] + block + src[loc[1]:], nil
}

// launchBlock is the replacement launch branch; $NAME placeholders are
// substituted with minified identifiers.
const launchBlock = `
if (!$USER.user) return console.warn("No user. Are you logged in?"), $URL;
let exePath = null;
try {
    const findExe = (dir) => {
        let list;
        try {
            list = $FS.readdirSync(dir, { withFileTypes: true });
        } catch (err) {
            return null;
        }
        for (const entry of list) {
            if (entry.isFile() && /\.exe$/i.test(entry.name) && !/crashpad_handler\.exe$/i.test(entry.name)) return $PATH.join(dir, entry.name);
        }
        return null;
    };
    exePath = findExe($DIR);
} catch (err) { }
if (exePath && $FS.existsSync(exePath)) {
    const args = ["-launchTo", $TARGET, "-jbg.config", "isBundle=false"];
    $CHILD.execFile($PATH.resolve(exePath), args, { detached: true, stdio: "ignore", cwd: $PATH.resolve($DIR) });
} else {
    $URL = "steam://run/" + $APP.data.steamId + "// -launchTo " + $TARGET + " -jbg.config isBundle=false";
    await $SHELL.shell.openExternal($URL);
}
`
