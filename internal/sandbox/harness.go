package sandbox

// harnessSource is the Python harness that runs a generated artifact in
// the child process. It sanitizes the script (display calls would block
// or fail headless), saves and restores the active Altair renderer so
// one run never pollutes the next, executes the script in a fresh
// namespace, and dumps every chart-capable value as a Vega-Lite JSON
// file in declaration order. On an exception it writes a structured
// error.json next to the charts directory and exits non-zero.
//
// Chart detection mirrors the Altair TopLevelMixin check, with a
// duck-typed fallback (to_dict plus a mark/encoding/composition
// attribute) so the harness degrades gracefully where Altair is not
// installed.
const harnessSource = `import json
import os
import sys
import traceback


def _is_chart(value, alt):
    if isinstance(value, type):
        return False
    if alt is not None and isinstance(value, alt.TopLevelMixin):
        return True
    if not callable(getattr(value, "to_dict", None)):
        return False
    return any(hasattr(value, a) for a in ("mark", "encoding", "layer", "hconcat", "vconcat"))


def main():
    script, charts_dir = sys.argv[1], sys.argv[2]
    with open(script, encoding="utf-8") as f:
        src = f.read()
    src = src.replace(".show()", "")
    src = src.replace(".display(", "# .display(")

    try:
        import altair as alt
    except ImportError:
        alt = None
    try:
        import pandas as pd
    except ImportError:
        pd = None

    ns = {"__name__": "__main__"}
    if alt is not None:
        ns["alt"] = alt
    if pd is not None:
        ns["pd"] = pd

    prior_renderer = alt.renderers.active if alt is not None else None
    if alt is not None:
        alt.renderers.enable("default")
    try:
        exec(compile(src, script, "exec"), ns)
    except BaseException as e:
        info = {
            "kind": type(e).__name__,
            "message": str(e),
            "traceback": traceback.format_exc(),
        }
        err_path = os.path.join(os.path.dirname(charts_dir), "error.json")
        with open(err_path, "w", encoding="utf-8") as f:
            json.dump(info, f)
        sys.stderr.write(info["traceback"])
        sys.exit(1)
    finally:
        if alt is not None and prior_renderer is not None:
            alt.renderers.enable(prior_renderer)

    idx = 0
    for name, value in list(ns.items()):
        if not _is_chart(value, alt):
            continue
        try:
            spec = value.to_dict()
        except Exception:
            continue
        path = os.path.join(charts_dir, "%03d_%s.json" % (idx, name))
        with open(path, "w", encoding="utf-8") as f:
            json.dump(spec, f, default=str)
        idx += 1


main()
`
