package components

import "github.com/recera/pactrend/pkg/styling"

// Theme is the dashboard stylesheet. Class names are scoped, so markup must
// go through Theme.Class.
var Theme = styling.StyleWithRegistry(`
.card {
	background: #fff;
	border: 1px solid #e2e8f0;
	border-radius: 8px;
	margin: 1rem 0;
}
.card-shadow { box-shadow: 0 1px 3px rgba(0, 0, 0, 0.12); }
.card-header {
	display: flex;
	align-items: center;
	justify-content: space-between;
	padding: 0.75rem 1rem;
	border-bottom: 1px solid #edf2f7;
}
.card-title { margin: 0; font-size: 1rem; }
.card-subtitle { margin: 0; color: #718096; font-size: 0.8rem; }
.card-body { padding: 0.5rem; }
.card-footer { padding: 0.5rem 1rem; color: #718096; font-size: 0.8rem; }

.control {
	font: inherit;
	padding: 0.1rem 0.45rem;
	border: 1px solid #cbd5e0;
	border-radius: 4px;
	background: #f7fafc;
	cursor: pointer;
}
.control:hover { background: #edf2f7; }
.control-quiet { background: transparent; border-color: transparent; }
.control-off { opacity: 0.5; cursor: default; }
.toolbar { display: inline-flex; gap: 0.25rem; }

.chart-root { max-width: 960px; }
.chart-status { font-variant-numeric: tabular-nums; }
.chart { display: block; width: 100%; touch-action: none; user-select: none; }
.chart-plot { fill: #fcfcfd; }
.chart-grid { stroke: #e2e8f0; stroke-width: 1; }
.chart-value { fill: #718096; font-size: 10px; }
.chart-time { fill: #718096; font-size: 10px; }
.chart-line { fill: none; stroke: #2b6cb0; stroke-width: 2; stroke-linejoin: round; }
.chart-empty { fill: #a0aec0; font-size: 12px; }

.alert {
	display: flex;
	gap: 0.5rem;
	margin: 0.75rem 0;
	padding: 0.5rem 0.75rem;
	border-left: 3px solid #3182ce;
	background: #ebf8ff;
}
.alert-warning { border-left-color: #dd6b20; background: #fffaf0; }
.alert-error { border-left-color: #e53e3e; background: #fff5f5; }
.alert-title { margin-right: 0.4rem; }

.spinner { color: #2b6cb0; }
.spinner-track { animation: pactrend-spin 1s linear infinite; }
.spinner-text { fill: #a0aec0; font-size: 12px; }
@keyframes pactrend-spin { to { transform: rotate(360deg); } }
`)
