package browser

// stealthScript is injected into every new document before any page script
// runs. It patches the surfaces page scripts use to identify automated
// browsers: the webdriver flag, the empty plugin list, the missing chrome
// runtime object, and the permissions API quirk of headless profiles. The
// rendering backend itself is handled at launch time (see Manager): the GPU
// compositor stays enabled so WebGL fingerprints report real hardware.
const stealthScript = `
(() => {
    'use strict';

    if (window.__adscanStealth) {
        return;
    }
    window.__adscanStealth = true;

    try {
        // Automation tools expose navigator.webdriver = true.
        Object.defineProperty(navigator, 'webdriver', {
            get: () => undefined,
            configurable: true
        });
    } catch (e) {}

    try {
        // Headless profiles ship an empty plugin list; real Chrome always
        // carries the PDF viewer entries.
        Object.defineProperty(navigator, 'plugins', {
            get: () => {
                const plugins = [
                    { name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
                    { name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai', description: '' },
                    { name: 'Native Client', filename: 'internal-nacl-plugin', description: '' }
                ];
                plugins.item = (i) => plugins[i] || null;
                plugins.namedItem = (n) => plugins.find(p => p.name === n) || null;
                plugins.refresh = () => {};
                return plugins;
            },
            configurable: true
        });
    } catch (e) {}

    try {
        Object.defineProperty(navigator, 'languages', {
            get: () => ['en-US', 'en'],
            configurable: true
        });
    } catch (e) {}

    try {
        // Pages probe window.chrome.runtime to distinguish real Chrome.
        if (!window.chrome) {
            window.chrome = {};
        }
        if (!window.chrome.runtime) {
            window.chrome.runtime = {};
        }
    } catch (e) {}

    try {
        // Headless Chrome answers notification permission queries with
        // 'denied' even when Notification.permission is 'default'.
        const originalQuery = window.navigator.permissions.query.bind(window.navigator.permissions);
        window.navigator.permissions.query = (parameters) => (
            parameters && parameters.name === 'notifications'
                ? Promise.resolve({ state: Notification.permission })
                : originalQuery(parameters)
        );
    } catch (e) {}
})();
`
