package headless

import "fmt"

// snippetIDsJS returns the element id of the snippet cell in every listing
// row, in page order. Rows without a snippet yield an empty string.
const snippetIDsJS = `Array.from(document.querySelectorAll('table[role="listitem"]')).map(function (row) {
  var cell = row.querySelector('span[role="gridcell"][id*="message_snippet"]');
  return cell ? cell.id : "";
})`

// rawTextJS reads a plain-text document, which Chrome wraps in a pre element.
const rawTextJS = `(function () {
  var pre = document.querySelector("pre");
  return (pre || document.body).textContent;
})()`

// dismissInterstitialJS clicks the proceed control next to the content warning
// link and reports whether it did.
var dismissInterstitialJS = fmt.Sprintf(`(function () {
  var link = Array.from(document.querySelectorAll("a")).find(function (a) {
    return a.textContent.indexOf(%q) >= 0;
  });
  if (!link) {
    return false;
  }
  var proceed = document.evaluate("../../span/*/input/../span", link, null,
    XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  if (!proceed) {
    return false;
  }
  proceed.click();
  return true;
})()`, InterstitialText)
